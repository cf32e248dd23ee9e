package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SweepLockService manages the advisory per-job-type running flag. Check and
// start are not atomic; two instances may occasionally both run a sweep and
// the queues tolerate it through idempotent stages and unique keys.
type SweepLockService struct {
	store  SweepLockStore
	logger Logger
	now    func() time.Time
}

func NewSweepLockService(store SweepLockStore, logger Logger, now func() time.Time) (*SweepLockService, error) {
	if store == nil {
		return nil, fmt.Errorf("core: sweep lock store is required")
	}
	if now == nil {
		now = time.Now
	}
	return &SweepLockService{store: store, logger: logger, now: now}, nil
}

func (s *SweepLockService) IsRunning(ctx context.Context, jobType SweepJobType) (bool, error) {
	if s == nil || s.store == nil {
		return false, fmt.Errorf("core: sweep lock service is not configured")
	}
	lock, found, err := s.store.GetByJobType(ctx, jobType)
	if err != nil {
		return false, err
	}
	return found && lock.Running(), nil
}

// StartSweep inserts the lock row on first use and resets it afterwards.
func (s *SweepLockService) StartSweep(ctx context.Context, jobType SweepJobType) (SweepToken, error) {
	if s == nil || s.store == nil {
		return SweepToken{}, fmt.Errorf("core: sweep lock service is not configured")
	}
	if strings.TrimSpace(string(jobType)) == "" {
		return SweepToken{}, ErrInvalidSweepJobType
	}
	now := s.now().UTC()
	lock, found, err := s.store.GetByJobType(ctx, jobType)
	if err != nil {
		return SweepToken{}, err
	}
	if !found {
		created, err := s.store.Create(ctx, SweepLock{
			JobType:   jobType,
			StartedAt: now,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return SweepToken{}, err
		}
		return SweepToken{LockID: created.ID, JobType: jobType, StartedAt: now}, nil
	}

	lock.StartedAt = now
	lock.CompletedAt = nil
	lock.UpdatedAt = now
	if err := s.store.Update(ctx, lock); err != nil {
		return SweepToken{}, err
	}
	return SweepToken{LockID: lock.ID, JobType: jobType, StartedAt: now}, nil
}

// CompleteSweep stamps completed_at. Completing an already completed sweep
// is logged and reported as an invariant violation.
func (s *SweepLockService) CompleteSweep(ctx context.Context, token SweepToken) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("core: sweep lock service is not configured")
	}
	lock, err := s.store.GetByID(ctx, token.LockID)
	if err != nil {
		return err
	}
	if lock.CompletedAt != nil {
		fields := map[string]any{
			"job_type":     string(lock.JobType),
			"lock_id":      lock.ID,
			"completed_at": lock.CompletedAt.UTC(),
		}
		logWithLevel(ctx, s.logger, "error", "sweep already completed", fields)
		return InvariantError(ErrSweepAlreadyCompleted.Error(), fields)
	}
	completedAt := s.now().UTC()
	lock.CompletedAt = &completedAt
	lock.UpdatedAt = completedAt
	return s.store.Update(ctx, lock)
}

// Release stamps completed_at on a running lock so the next sweep of that
// job type is not skipped. It reports false when nothing was running.
func (s *SweepLockService) Release(ctx context.Context, jobType SweepJobType) (SweepLock, bool, error) {
	if s == nil || s.store == nil {
		return SweepLock{}, false, fmt.Errorf("core: sweep lock service is not configured")
	}
	lock, found, err := s.store.GetByJobType(ctx, jobType)
	if err != nil {
		return SweepLock{}, false, err
	}
	if !found || !lock.Running() {
		return lock, false, nil
	}
	completedAt := s.now().UTC()
	lock.CompletedAt = &completedAt
	lock.UpdatedAt = completedAt
	if err := s.store.Update(ctx, lock); err != nil {
		return SweepLock{}, false, err
	}
	logWithLevel(ctx, s.logger, "warn", "sweep lock released", map[string]any{
		"job_type":   string(jobType),
		"lock_id":    lock.ID,
		"started_at": lock.StartedAt.UTC(),
	})
	return lock, true, nil
}

func (s *SweepLockService) List(ctx context.Context) ([]SweepLock, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("core: sweep lock service is not configured")
	}
	return s.store.List(ctx)
}
