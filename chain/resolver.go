package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/goliatone/go-escrow-pipeline/core"
)

type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

func DialEthClient(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type ResolverOption func(*Resolver)

func WithDialer(dial Dialer) ResolverOption {
	return func(r *Resolver) {
		if dial != nil {
			r.dial = dial
		}
	}
}

func WithClientOptions(opts ...EscrowClientOption) ResolverOption {
	return func(r *Resolver) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

// Resolver implements core.EscrowClientResolver. Connections are dialed on
// first use and kept for the life of the process.
type Resolver struct {
	rpcURLs    map[int64]string
	key        *ecdsa.PrivateKey
	dial       Dialer
	clientOpts []EscrowClientOption

	mu      sync.Mutex
	clients map[int64]*EscrowClient
}

func NewResolver(rpcURLs map[int64]string, hexKey string, opts ...ResolverOption) (*Resolver, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: parse operator key: %w", err)
	}
	urls := make(map[int64]string, len(rpcURLs))
	for chainID, url := range rpcURLs {
		if chainID <= 0 || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("chain: invalid rpc entry for chain %d", chainID)
		}
		urls[chainID] = strings.TrimSpace(url)
	}
	resolver := &Resolver{
		rpcURLs: urls,
		key:     key,
		dial:    DialEthClient,
		clients: map[int64]*EscrowClient{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(resolver)
		}
	}
	return resolver, nil
}

var _ core.EscrowClientResolver = (*Resolver)(nil)

func (r *Resolver) ForChain(ctx context.Context, chainID int64) (core.EscrowClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[chainID]; ok {
		return client, nil
	}
	url, ok := r.rpcURLs[chainID]
	if !ok {
		return nil, core.InvariantError("unsupported chain", map[string]any{"chain_id": chainID})
	}
	backend, err := r.dial(ctx, url)
	if err != nil {
		return nil, core.ExternalError(err, core.PipelineErrorChainCallFailed, "dial chain rpc", map[string]any{
			"chain_id": chainID,
		})
	}
	client, err := NewEscrowClient(chainID, backend, r.key, r.clientOpts...)
	if err != nil {
		return nil, err
	}
	r.clients[chainID] = client
	return client, nil
}

// ChainIDs lists the configured chains in ascending order.
func (r *Resolver) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.rpcURLs))
	for id := range r.rpcURLs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
