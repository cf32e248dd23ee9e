package operators

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-escrow-pipeline/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const operatorCacheKeyPrefix = "go-escrow-pipeline::operator::v1"

// CachedDirectory is a read-through cache in front of a slower directory,
// typically one backed by chain reads. Misses are not cached.
type CachedDirectory struct {
	base  core.OperatorDirectory
	cache repositorycache.CacheService
}

func NewCachedDirectory(base core.OperatorDirectory, cacheService repositorycache.CacheService) (*CachedDirectory, error) {
	if base == nil {
		return nil, fmt.Errorf("operators: base directory is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("operators: cache service is required")
	}
	return &CachedDirectory{base: base, cache: cacheService}, nil
}

// OperatorCacheKey is go-escrow-pipeline::operator::v1::<chain_id>::<address>.
func OperatorCacheKey(chainID int64, address string) string {
	return strings.Join([]string{
		operatorCacheKeyPrefix,
		strconv.FormatInt(chainID, 10),
		url.PathEscape(core.NormalizeAddress(address)),
	}, "::")
}

func (d *CachedDirectory) GetOperator(ctx context.Context, chainID int64, address string) (core.Operator, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return core.Operator{}, fmt.Errorf("operators: cached directory is not configured")
	}
	address = core.NormalizeAddress(address)
	return repositorycache.GetOrFetch(ctx, d.cache, OperatorCacheKey(chainID, address), func(ctx context.Context) (core.Operator, error) {
		return d.base.GetOperator(ctx, chainID, address)
	})
}

// Invalidate drops the cached entry after an operator changes its endpoint.
func (d *CachedDirectory) Invalidate(ctx context.Context, chainID int64, address string) error {
	if d == nil || d.cache == nil {
		return fmt.Errorf("operators: cached directory is not configured")
	}
	return d.cache.Delete(ctx, OperatorCacheKey(chainID, address))
}

var _ core.OperatorDirectory = (*CachedDirectory)(nil)
