package sqlstore

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goliatone/go-escrow-pipeline/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const rateLimitStateCacheKeyPrefix = "escrow-pipeline::receiver_rate_limit::v1"

// CachedRateLimitStateStore fronts a state store with a read cache. Writes go
// to the base store and evict the cached entry.
type CachedRateLimitStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedRateLimitStateStore(base ratelimit.StateStore, cacheService repositorycache.CacheService) (*CachedRateLimitStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base rate-limit state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: rate-limit cache service is required")
	}
	return &CachedRateLimitStateStore{base: base, cache: cacheService}, nil
}

// RateLimitStateCacheKey is escrow-pipeline::receiver_rate_limit::v1::<receiver>
// with the normalized receiver key path escaped.
func RateLimitStateCacheKey(key ratelimit.Key) (string, error) {
	normalized := ratelimit.NormalizeKey(key)
	if normalized == "" {
		return "", fmt.Errorf("sqlstore: rate-limit receiver key is required")
	}
	return rateLimitStateCacheKeyPrefix + "::" + url.PathEscape(string(normalized)), nil
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	cacheKey, err := RateLimitStateCacheKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (ratelimit.State, error) {
		fetched, fetchErr := s.base.Get(ctx, ratelimit.NormalizeKey(key))
		if fetchErr != nil {
			return ratelimit.State{}, fetchErr
		}
		return cloneRateLimitState(fetched), nil
	})
	if err != nil {
		return ratelimit.State{}, err
	}
	return cloneRateLimitState(state), nil
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	cacheKey, err := RateLimitStateCacheKey(state.Key)
	if err != nil {
		return err
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneRateLimitState(state ratelimit.State) ratelimit.State {
	cloned := state
	cloned.Key = ratelimit.NormalizeKey(state.Key)
	cloned.ResetAt = utcPointer(state.ResetAt)
	cloned.ThrottledUntil = utcPointer(state.ThrottledUntil)
	if state.RetryAfter != nil {
		value := *state.RetryAfter
		cloned.RetryAfter = &value
	}
	return cloned
}
