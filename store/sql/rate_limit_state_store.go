package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-escrow-pipeline/ratelimit"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RateLimitStateStore keeps receiver throttle state in receiver_rate_limits so
// every pipeline instance honors the same Retry-After window.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*receiverRateLimitRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*receiverRateLimitRecord](db, receiverRateLimitHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rate-limit state repository wiring: %w", err)
		}
	}
	return &RateLimitStateStore{db: db, repo: repo}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if s == nil || s.repo == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key = ratelimit.NormalizeKey(key)
	if key == "" {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit receiver key is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("receiver_key", "=", string(key)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: get rate-limit state %s: %w", key, err)
	}
	if len(records) == 0 {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return records[0].toDomain(), nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if state.Key == "" {
		return fmt.Errorf("sqlstore: rate-limit receiver key is required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	err := s.upsert(ctx, state)
	if isUniqueViolation(err) {
		// another instance inserted the row first
		err = s.upsert(ctx, state)
	}
	if err != nil {
		return fmt.Errorf("sqlstore: upsert rate-limit state %s: %w", state.Key, err)
	}
	return nil
}

func (s *RateLimitStateStore) upsert(ctx context.Context, state ratelimit.State) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &receiverRateLimitRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.receiver_key = ?", string(state.Key)).
			Limit(1).
			Scan(ctx)
		found := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		record := newReceiverRateLimitRecord(state)
		if !found {
			record.ID = uuid.NewString()
			record.CreatedAt = state.UpdatedAt.UTC()
			_, err = tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		_, err = tx.NewUpdate().
			Model(record).
			WherePK().
			Exec(ctx)
		return err
	})
}

func newReceiverRateLimitRecord(state ratelimit.State) *receiverRateLimitRecord {
	return &receiverRateLimitRecord{
		ReceiverKey:       string(state.Key),
		Limit:             state.Limit,
		Remaining:         state.Remaining,
		ResetAt:           utcPointer(state.ResetAt),
		RetryAfterSeconds: durationToSeconds(state.RetryAfter),
		ThrottledUntil:    utcPointer(state.ThrottledUntil),
		LastStatus:        state.LastStatus,
		Attempts:          state.Attempts,
		UpdatedAt:         state.UpdatedAt.UTC(),
	}
}

func (r *receiverRateLimitRecord) toDomain() ratelimit.State {
	if r == nil {
		return ratelimit.State{}
	}
	state := ratelimit.State{
		Key:            ratelimit.Key(r.ReceiverKey),
		Limit:          r.Limit,
		Remaining:      r.Remaining,
		ResetAt:        utcPointer(r.ResetAt),
		ThrottledUntil: utcPointer(r.ThrottledUntil),
		LastStatus:     r.LastStatus,
		Attempts:       r.Attempts,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.RetryAfterSeconds != nil && *r.RetryAfterSeconds > 0 {
		value := time.Duration(*r.RetryAfterSeconds) * time.Second
		state.RetryAfter = &value
	}
	return state
}

func utcPointer(input *time.Time) *time.Time {
	if input == nil || input.IsZero() {
		return nil
	}
	value := input.UTC()
	return &value
}

// durationToSeconds rounds sub-second hints up so a hint is never dropped.
func durationToSeconds(input *time.Duration) *int {
	if input == nil || *input <= 0 {
		return nil
	}
	seconds := int((*input + time.Second - 1) / time.Second)
	return &seconds
}
