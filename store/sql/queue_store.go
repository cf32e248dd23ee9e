package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-escrow-pipeline/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
)

const defaultListLimit = 100

// queueStore implements core.QueueStore over one retry queue table.
type queueStore[R any, T core.Retryable] struct {
	repo     repository.Repository[R]
	label    string
	toRecord func(T) R
	toDomain func(R) T
}

func newQueueStore[R any, T core.Retryable](
	db *bun.DB,
	label string,
	handlers repository.ModelHandlers[R],
	toRecord func(T) R,
	toDomain func(R) T,
) (*queueStore[R, T], error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[R](db, handlers)
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", label, err)
		}
	}
	return &queueStore[R, T]{
		repo:     repo,
		label:    label,
		toRecord: toRecord,
		toDomain: toDomain,
	}, nil
}

func (s *queueStore[R, T]) FindEligible(ctx context.Context, query core.EligibilityQuery) ([]T, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: queue store is not configured")
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	now := query.Now.UTC()
	if query.Now.IsZero() {
		now = time.Now().UTC()
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(query.Status)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.retries_count <= ?", query.MaxRetries).
				Where("?TableAlias.wait_until <= ?", now)
		}),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find eligible %s: %w", s.label, err)
	}
	return s.mapRecords(records), nil
}

// CreateUnique inserts the item and reports a unique key collision as a
// duplicate. The item's ID is assigned on insert and cleared on collision.
func (s *queueStore[R, T]) CreateUnique(ctx context.Context, item T) (core.CreateResult, error) {
	if s == nil || s.repo == nil {
		return "", fmt.Errorf("sqlstore: queue store is not configured")
	}
	queued := item.Queue()
	if queued == nil {
		return "", fmt.Errorf("sqlstore: %s item is required", s.label)
	}
	now := time.Now().UTC()
	if strings.TrimSpace(queued.ID) == "" {
		queued.ID = uuid.NewString()
	}
	if queued.CreatedAt.IsZero() {
		queued.CreatedAt = now
	}
	if queued.UpdatedAt.IsZero() {
		queued.UpdatedAt = queued.CreatedAt
	}
	if queued.WaitUntil.IsZero() {
		queued.WaitUntil = queued.CreatedAt
	}
	if queued.Status == "" {
		queued.Status = core.StatusPending
	}

	if _, err := s.repo.Create(ctx, s.toRecord(item)); err != nil {
		if isUniqueViolation(err) {
			queued.ID = ""
			return core.CreateResultDuplicate, nil
		}
		return "", fmt.Errorf("sqlstore: create %s: %w", s.label, err)
	}
	return core.CreateResultCreated, nil
}

func (s *queueStore[R, T]) Update(ctx context.Context, item T) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: queue store is not configured")
	}
	queued := item.Queue()
	if queued == nil || strings.TrimSpace(queued.ID) == "" {
		return fmt.Errorf("sqlstore: %s id is required", s.label)
	}
	if queued.UpdatedAt.IsZero() {
		queued.UpdatedAt = time.Now().UTC()
	}
	id := strings.TrimSpace(queued.ID)
	if _, err := s.repo.Update(ctx, s.toRecord(item), repository.UpdateByID(id)); err != nil {
		return fmt.Errorf("sqlstore: update %s %s: %w", s.label, id, err)
	}
	return nil
}

func (s *queueStore[R, T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if s == nil || s.repo == nil {
		return zero, fmt.Errorf("sqlstore: queue store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return zero, fmt.Errorf("sqlstore: get %s %s: %w", s.label, id, err)
	}
	return s.toDomain(record), nil
}

// ListByStatus returns rows in the status, most recently updated first.
func (s *queueStore[R, T]) ListByStatus(ctx context.Context, status core.QueueStatus, limit int) ([]T, int, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("sqlstore: queue store is not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	records, total, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(status)),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: list %s: %w", s.label, err)
	}
	return s.mapRecords(records), total, nil
}

func (s *queueStore[R, T]) mapRecords(records []R) []T {
	out := make([]T, 0, len(records))
	for _, record := range records {
		out = append(out, s.toDomain(record))
	}
	return out
}

type EscrowCompletionStore struct {
	*queueStore[*escrowCompletionRecord, *core.EscrowCompletion]
}

func NewEscrowCompletionStore(db *bun.DB) (*EscrowCompletionStore, error) {
	store, err := newQueueStore(db, "escrow completion",
		escrowCompletionHandlers(),
		newEscrowCompletionRecord,
		(*escrowCompletionRecord).toDomain,
	)
	if err != nil {
		return nil, err
	}
	return &EscrowCompletionStore{queueStore: store}, nil
}

type IncomingWebhookStore struct {
	*queueStore[*incomingWebhookRecord, *core.IncomingWebhook]
}

func NewIncomingWebhookStore(db *bun.DB) (*IncomingWebhookStore, error) {
	store, err := newQueueStore(db, "incoming webhook",
		incomingWebhookHandlers(),
		newIncomingWebhookRecord,
		(*incomingWebhookRecord).toDomain,
	)
	if err != nil {
		return nil, err
	}
	return &IncomingWebhookStore{queueStore: store}, nil
}

type OutgoingWebhookStore struct {
	*queueStore[*outgoingWebhookRecord, *core.OutgoingWebhook]
}

func NewOutgoingWebhookStore(db *bun.DB) (*OutgoingWebhookStore, error) {
	store, err := newQueueStore(db, "outgoing webhook",
		outgoingWebhookHandlers(),
		newOutgoingWebhookRecord,
		(*outgoingWebhookRecord).toDomain,
	)
	if err != nil {
		return nil, err
	}
	return &OutgoingWebhookStore{queueStore: store}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return true
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
