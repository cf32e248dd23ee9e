package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-escrow-pipeline/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SweepLockStore struct {
	repo repository.Repository[*sweepLockRecord]
}

func NewSweepLockStore(db *bun.DB) (*SweepLockStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sweepLockRecord](db, sweepLockHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sweep lock repository wiring: %w", err)
		}
	}
	return &SweepLockStore{repo: repo}, nil
}

func (s *SweepLockStore) GetByJobType(ctx context.Context, jobType core.SweepJobType) (core.SweepLock, bool, error) {
	if s == nil || s.repo == nil {
		return core.SweepLock{}, false, fmt.Errorf("sqlstore: sweep lock store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("job_type", "=", strings.TrimSpace(string(jobType))),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.SweepLock{}, false, fmt.Errorf("sqlstore: get sweep lock %s: %w", jobType, err)
	}
	if len(records) == 0 {
		return core.SweepLock{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

// Create inserts the lock row for a job type. When another instance inserted
// the row first the existing row is returned.
func (s *SweepLockStore) Create(ctx context.Context, lock core.SweepLock) (core.SweepLock, error) {
	if s == nil || s.repo == nil {
		return core.SweepLock{}, fmt.Errorf("sqlstore: sweep lock store is not configured")
	}
	if strings.TrimSpace(string(lock.JobType)) == "" {
		return core.SweepLock{}, core.ErrInvalidSweepJobType
	}
	now := time.Now().UTC()
	if strings.TrimSpace(lock.ID) == "" {
		lock.ID = uuid.NewString()
	}
	if lock.StartedAt.IsZero() {
		lock.StartedAt = now
	}
	if lock.CreatedAt.IsZero() {
		lock.CreatedAt = now
	}
	if lock.UpdatedAt.IsZero() {
		lock.UpdatedAt = now
	}
	record, err := s.repo.Create(ctx, newSweepLockRecord(lock))
	if err != nil {
		if isUniqueViolation(err) {
			existing, found, getErr := s.GetByJobType(ctx, lock.JobType)
			if getErr != nil {
				return core.SweepLock{}, getErr
			}
			if found {
				return existing, nil
			}
		}
		return core.SweepLock{}, fmt.Errorf("sqlstore: create sweep lock %s: %w", lock.JobType, err)
	}
	return record.toDomain(), nil
}

func (s *SweepLockStore) Update(ctx context.Context, lock core.SweepLock) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: sweep lock store is not configured")
	}
	id := strings.TrimSpace(lock.ID)
	if id == "" {
		return fmt.Errorf("sqlstore: sweep lock id is required")
	}
	if lock.UpdatedAt.IsZero() {
		lock.UpdatedAt = time.Now().UTC()
	}
	if _, err := s.repo.Update(ctx, newSweepLockRecord(lock), repository.UpdateByID(id)); err != nil {
		return fmt.Errorf("sqlstore: update sweep lock %s: %w", id, err)
	}
	return nil
}

func (s *SweepLockStore) GetByID(ctx context.Context, id string) (core.SweepLock, error) {
	if s == nil || s.repo == nil {
		return core.SweepLock{}, fmt.Errorf("sqlstore: sweep lock store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.SweepLock{}, fmt.Errorf("sqlstore: get sweep lock %s: %w", id, err)
	}
	return record.toDomain(), nil
}

func (s *SweepLockStore) List(ctx context.Context) ([]core.SweepLock, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: sweep lock store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("job_type ASC"))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list sweep locks: %w", err)
	}
	out := make([]core.SweepLock, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
