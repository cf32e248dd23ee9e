package sqlstore_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-escrow-pipeline/ratelimit"
	sqlstore "github.com/goliatone/go-escrow-pipeline/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

func TestRateLimitStateStore_UpsertAndGet(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	store, err := sqlstore.NewRateLimitStateStore(client.DB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Get(ctx, "oracle.example.com"); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}

	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	until := now.Add(2 * time.Hour)
	hint := 1500 * time.Millisecond
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            " Oracle.Example.com ",
		Limit:          60,
		Remaining:      0,
		RetryAfter:     &hint,
		ThrottledUntil: &until,
		LastStatus:     http.StatusTooManyRequests,
		Attempts:       1,
		UpdatedAt:      now,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	state, err := store.Get(ctx, "oracle.example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Key != "oracle.example.com" || state.Limit != 60 || state.LastStatus != http.StatusTooManyRequests || state.Attempts != 1 {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(until) {
		t.Fatalf("expected throttled until %s, got %v", until, state.ThrottledUntil)
	}
	if state.RetryAfter == nil || *state.RetryAfter != 2*time.Second {
		t.Fatalf("expected retry hint rounded up to 2s, got %v", state.RetryAfter)
	}

	if err := store.Upsert(ctx, ratelimit.State{
		Key:        "oracle.example.com",
		Limit:      60,
		Remaining:  59,
		LastStatus: http.StatusOK,
		UpdatedAt:  now.Add(3 * time.Hour),
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	state, err = store.Get(ctx, "oracle.example.com")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if state.ThrottledUntil != nil || state.Remaining != 59 || state.LastStatus != http.StatusOK {
		t.Fatalf("expected throttle cleared, got %+v", state)
	}

	var rows int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM receiver_rate_limits").Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row per receiver, got %d", rows)
	}
}

func TestRateLimitStateStore_ThrottleIsSharedAcrossInstances(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	newPolicy := func() *ratelimit.AdaptivePolicy {
		store, err := sqlstore.NewRateLimitStateStore(client.DB())
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		policy := ratelimit.NewAdaptivePolicy(store)
		policy.Now = func() time.Time { return now }
		return policy
	}
	first, second := newPolicy(), newPolicy()

	headers := http.Header{}
	headers.Set("Retry-After", "120")
	if err := first.AfterCall(ctx, "oracle.example.com", ratelimit.ResponseMeta{
		StatusCode: http.StatusTooManyRequests,
		Headers:    headers,
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}

	var throttled ratelimit.ThrottledError
	if err := second.BeforeCall(ctx, "oracle.example.com"); !errors.As(err, &throttled) {
		t.Fatalf("expected second instance to see the throttle, got %v", err)
	}
	if throttled.RetryAfter <= 0 {
		t.Fatalf("expected a positive hold, got %s", throttled.RetryAfter)
	}
}

type countingStateStore struct {
	base ratelimit.StateStore
	gets int
}

func (s *countingStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	s.gets++
	return s.base.Get(ctx, key)
}

func (s *countingStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	return s.base.Upsert(ctx, state)
}

func TestCachedRateLimitStateStore_ReadsThroughAndEvictsOnWrite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	base, err := sqlstore.NewRateLimitStateStore(client.DB())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	counting := &countingStateStore{base: base}
	cacheCfg := repositorycache.DefaultConfig()
	cacheCfg.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheCfg)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	cached, err := sqlstore.NewCachedRateLimitStateStore(counting, cacheService)
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	if err := cached.Upsert(ctx, ratelimit.State{Key: "oracle.example.com", Limit: 10, Remaining: 5}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 0; i < 3; i++ {
		state, err := cached.Get(ctx, "ORACLE.example.com")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if state.Remaining != 5 {
			t.Fatalf("unexpected state %+v", state)
		}
	}
	if counting.gets != 1 {
		t.Fatalf("expected one base read, got %d", counting.gets)
	}

	if err := cached.Upsert(ctx, ratelimit.State{Key: "oracle.example.com", Limit: 10, Remaining: 0}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	state, err := cached.Get(ctx, "oracle.example.com")
	if err != nil {
		t.Fatalf("get after write: %v", err)
	}
	if state.Remaining != 0 || counting.gets != 2 {
		t.Fatalf("expected fresh read after eviction, got %+v after %d reads", state, counting.gets)
	}
}

func TestRateLimitStateCacheKey(t *testing.T) {
	key, err := sqlstore.RateLimitStateCacheKey(" Oracle.Example.com:8443 ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "escrow-pipeline::receiver_rate_limit::v1::oracle.example.com:8443" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := sqlstore.RateLimitStateCacheKey("  "); err == nil {
		t.Fatalf("expected empty key error")
	}
}
