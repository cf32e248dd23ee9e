// Package scheduler drives the periodic sweeps from an in-process cron.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-escrow-pipeline/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/robfig/cron/v3"
)

type Option func(*Scheduler)

func WithLogger(logger core.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJobTypes limits the scheduled sweeps to jobTypes.
func WithJobTypes(jobTypes ...core.SweepJobType) Option {
	return func(s *Scheduler) {
		s.jobTypes = append([]core.SweepJobType(nil), jobTypes...)
	}
}

// Scheduler registers one cron entry per sweep job type. Overlapping ticks of
// the same entry are skipped in process; the sweep lock covers other
// instances.
type Scheduler struct {
	sweeps   core.SweepTrigger
	logger   core.Logger
	interval string
	timeout  time.Duration
	disabled bool
	jobTypes []core.SweepJobType

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[core.SweepJobType]cron.EntryID
	started bool
}

func New(sweeps core.SweepTrigger, cfg core.SchedulerConfig, opts ...Option) (*Scheduler, error) {
	if sweeps == nil {
		return nil, fmt.Errorf("scheduler: sweep trigger is required")
	}
	s := &Scheduler{
		sweeps:   sweeps,
		interval: strings.TrimSpace(cfg.Interval),
		timeout:  cfg.SweepTimeout,
		disabled: cfg.Disabled,
		jobTypes: core.SweepJobTypes(),
		entries:  map[core.SweepJobType]cron.EntryID{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		_, s.logger = glog.Resolve("pipeline.scheduler", nil, nil)
	}
	if s.disabled {
		return s, nil
	}
	if s.interval == "" {
		return nil, fmt.Errorf("scheduler: interval is required")
	}

	cronLogger := cronLogAdapter{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	for _, jobType := range s.jobTypes {
		if _, err := core.ParseSweepJobType(string(jobType)); err != nil {
			return nil, fmt.Errorf("scheduler: %w: %s", err, jobType)
		}
		id, err := s.cron.AddFunc(s.interval, func() { s.Tick(context.Background(), jobType) })
		if err != nil {
			return nil, fmt.Errorf("scheduler: schedule %s at %q: %w", jobType, s.interval, err)
		}
		s.entries[jobType] = id
	}
	return s, nil
}

func (s *Scheduler) Disabled() bool {
	return s == nil || s.disabled
}

func (s *Scheduler) JobTypes() []core.SweepJobType {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.SweepJobType, 0, len(s.entries))
	for _, jobType := range s.jobTypes {
		if _, ok := s.entries[jobType]; ok {
			out = append(out, jobType)
		}
	}
	return out
}

func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	if s.disabled {
		s.logger.Info("scheduler disabled, sweeps run on external trigger")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", "interval", s.interval, "jobs", len(s.entries))
}

// Stop prevents new ticks and waits for running sweeps until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one sweep with the configured timeout. Failures are logged; the
// next tick retries.
func (s *Scheduler) Tick(ctx context.Context, jobType core.SweepJobType) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	outcome, err := s.sweeps.Run(ctx, jobType)
	if err != nil {
		s.logger.Error("scheduled sweep failed", "job_type", string(jobType), "error", err)
		return
	}
	if outcome.Skipped {
		s.logger.Debug("scheduled sweep skipped", "job_type", string(jobType))
		return
	}
	s.logger.Debug("scheduled sweep finished", "job_type", string(jobType), "duration", outcome.Duration)
}

type cronLogAdapter struct {
	logger core.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

var _ cron.Logger = cronLogAdapter{}
