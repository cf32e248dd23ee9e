package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type SweepOutcome struct {
	JobType  SweepJobType
	Skipped  bool
	Duration time.Duration
}

// SweepRunner wraps registered sweeps with the advisory lock: skip when
// running, start, run, then complete even when the sweep fails.
type SweepRunner struct {
	locks   *SweepLockService
	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time

	mu     sync.RWMutex
	sweeps map[SweepJobType]SweepFunc
}

func NewSweepRunner(locks *SweepLockService, logger Logger, metrics MetricsRecorder, now func() time.Time) (*SweepRunner, error) {
	if locks == nil {
		return nil, fmt.Errorf("core: sweep lock service is required")
	}
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	if now == nil {
		now = time.Now
	}
	return &SweepRunner{
		locks:   locks,
		logger:  logger,
		metrics: metrics,
		now:     now,
		sweeps:  map[SweepJobType]SweepFunc{},
	}, nil
}

func (r *SweepRunner) Register(jobType SweepJobType, fn SweepFunc) error {
	if r == nil {
		return fmt.Errorf("core: sweep runner is not configured")
	}
	if _, err := ParseSweepJobType(string(jobType)); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("core: sweep func is required for %s", jobType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps[jobType] = fn
	return nil
}

func (r *SweepRunner) JobTypes() []SweepJobType {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SweepJobType, 0, len(r.sweeps))
	for jobType := range r.sweeps {
		out = append(out, jobType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *SweepRunner) Run(ctx context.Context, jobType SweepJobType) (SweepOutcome, error) {
	if r == nil || r.locks == nil {
		return SweepOutcome{}, fmt.Errorf("core: sweep runner is not configured")
	}
	r.mu.RLock()
	fn, ok := r.sweeps[jobType]
	r.mu.RUnlock()
	if !ok {
		return SweepOutcome{JobType: jobType}, ErrInvalidSweepJobType
	}
	return r.RunFunc(ctx, jobType, fn)
}

// RunFunc runs fn under the lock for jobType without requiring registration.
func (r *SweepRunner) RunFunc(ctx context.Context, jobType SweepJobType, fn SweepFunc) (SweepOutcome, error) {
	outcome := SweepOutcome{JobType: jobType}
	fields := map[string]any{"job_type": string(jobType)}

	running, err := r.locks.IsRunning(ctx, jobType)
	if err != nil {
		return outcome, err
	}
	if running {
		outcome.Skipped = true
		logWithLevel(ctx, r.logger, "debug", "sweep already running, skipping", fields)
		recordCounter(ctx, r.metrics, "pipeline.sweep.skipped", 1, map[string]string{"job_type": string(jobType)})
		return outcome, nil
	}

	token, err := r.locks.StartSweep(ctx, jobType)
	if err != nil {
		return outcome, err
	}
	startedAt := r.now()
	runErr := fn(ctx)
	outcome.Duration = r.now().Sub(startedAt)

	// completion uses a detached context so a cancelled sweep still releases the flag
	completeErr := r.locks.CompleteSweep(context.WithoutCancel(ctx), token)

	fields["duration_ms"] = outcome.Duration.Milliseconds()
	tags := map[string]string{"job_type": string(jobType), "status": "success"}
	if runErr != nil {
		fields["error"] = runErr.Error()
		tags["status"] = "failure"
		logWithLevel(ctx, r.logger, "error", "sweep finished with errors", fields)
	} else {
		logWithLevel(ctx, r.logger, "info", "sweep finished", fields)
	}
	recordCounter(ctx, r.metrics, "pipeline.sweep.total", 1, tags)
	recordHistogram(ctx, r.metrics, "pipeline.sweep.duration_ms", float64(outcome.Duration.Milliseconds()), tags)
	return outcome, errors.Join(runErr, completeErr)
}

