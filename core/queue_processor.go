package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultQueueBatchSize = 100

// StageHandler advances one item. On success it sets the item's next status;
// returning an error hands the item to the retry policy.
type StageHandler[T Retryable] func(ctx context.Context, item T) error

type QueueProcessorConfig struct {
	Name      string
	Policy    RetryPolicy
	BatchSize int
}

type SweepStats struct {
	Claimed  int
	Advanced int
	Retried  int
	Deferred int
	Failed   int
}

// QueueProcessor runs the claim, handle and record loop shared by every
// retryable queue.
type QueueProcessor[T Retryable] struct {
	name    string
	store   QueueStore[T]
	policy  RetryPolicy
	batch   int
	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time
}

func NewQueueProcessor[T Retryable](
	store QueueStore[T],
	config QueueProcessorConfig,
	logger Logger,
	metrics MetricsRecorder,
	now func() time.Time,
) (*QueueProcessor[T], error) {
	if store == nil {
		return nil, fmt.Errorf("core: queue store is required")
	}
	name := strings.TrimSpace(config.Name)
	if name == "" {
		return nil, fmt.Errorf("core: queue name is required")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultQueueBatchSize
	}
	if config.Policy.Strategy == "" {
		config.Policy.Strategy = BackoffImmediate
	}
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	if now == nil {
		now = time.Now
	}
	return &QueueProcessor[T]{
		name:    name,
		store:   store,
		policy:  config.Policy,
		batch:   config.BatchSize,
		logger:  logger,
		metrics: metrics,
		now:     now,
	}, nil
}

func (p *QueueProcessor[T]) Policy() RetryPolicy {
	return p.policy
}

// Sweep processes one batch of eligible items in the given status. Handler
// failures never abort the batch; only persistence failures are returned.
func (p *QueueProcessor[T]) Sweep(ctx context.Context, status QueueStatus, handler StageHandler[T]) (SweepStats, error) {
	if p == nil || p.store == nil {
		return SweepStats{}, fmt.Errorf("core: queue processor is not configured")
	}
	if handler == nil {
		return SweepStats{}, fmt.Errorf("core: stage handler is required for %s/%s", p.name, status)
	}
	startedAt := p.now()
	items, err := p.store.FindEligible(ctx, EligibilityQuery{
		Status:     status,
		MaxRetries: p.policy.MaxRetries,
		Now:        startedAt.UTC(),
		Limit:      p.batch,
	})
	if err != nil {
		return SweepStats{}, fmt.Errorf("core: find eligible %s/%s: %w", p.name, status, err)
	}

	stats := SweepStats{Claimed: len(items)}
	var sweepErr error
	for _, item := range items {
		if ctx.Err() != nil {
			sweepErr = errors.Join(sweepErr, ctx.Err())
			break
		}
		queued := item.Queue()
		if queued == nil {
			continue
		}
		previous := queued.Status
		if stageErr := p.runStage(ctx, item, handler); stageErr != nil {
			decision := p.policy.Apply(queued, stageErr, p.now())
			fields := itemFields(queued)
			fields["queue"] = p.name
			fields["error"] = stageErr.Error()
			fields["decision"] = string(decision)
			if updateErr := p.store.Update(ctx, item); updateErr != nil {
				fields["update_error"] = updateErr.Error()
				logWithLevel(ctx, p.logger, "error", "queue item retry state not persisted", fields)
				sweepErr = errors.Join(sweepErr, fmt.Errorf("core: record %s item %s failure: %w", p.name, queued.ID, updateErr))
				continue
			}
			switch decision {
			case RetryDecisionFail:
				stats.Failed++
				logWithLevel(ctx, p.logger, "error", "queue item failed", fields)
			case RetryDecisionDefer:
				stats.Deferred++
				fields["wait_until"] = queued.WaitUntil
				logWithLevel(ctx, p.logger, "info", "queue item deferred", fields)
			default:
				stats.Retried++
				logWithLevel(ctx, p.logger, "warn", "queue item scheduled for retry", fields)
			}
			continue
		}

		now := p.now().UTC()
		if queued.Status != previous {
			// every stage starts with a fresh retry budget
			queued.RetriesCount = 0
			queued.WaitUntil = now
		}
		queued.UpdatedAt = now
		if err := p.store.Update(ctx, item); err != nil {
			sweepErr = errors.Join(sweepErr, fmt.Errorf("core: advance %s item %s: %w", p.name, queued.ID, err))
			continue
		}
		stats.Advanced++
		fields := itemFields(queued)
		fields["queue"] = p.name
		fields["from_status"] = string(previous)
		logWithLevel(ctx, p.logger, "debug", "queue item advanced", fields)
	}

	p.observe(ctx, status, stats, startedAt)
	return stats, sweepErr
}

func (p *QueueProcessor[T]) runStage(ctx context.Context, item T, handler StageHandler[T]) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: %s stage panicked: %v", p.name, recovered)
		}
	}()
	return handler(ctx, item)
}

func (p *QueueProcessor[T]) observe(ctx context.Context, status QueueStatus, stats SweepStats, startedAt time.Time) {
	tags := map[string]string{"queue": p.name, "status": string(status)}
	recordCounter(ctx, p.metrics, "pipeline.queue.claimed", int64(stats.Claimed), tags)
	recordCounter(ctx, p.metrics, "pipeline.queue.advanced", int64(stats.Advanced), tags)
	recordCounter(ctx, p.metrics, "pipeline.queue.retried", int64(stats.Retried), tags)
	recordCounter(ctx, p.metrics, "pipeline.queue.deferred", int64(stats.Deferred), tags)
	recordCounter(ctx, p.metrics, "pipeline.queue.failed", int64(stats.Failed), tags)
	recordHistogram(ctx, p.metrics, "pipeline.queue.sweep_ms", float64(p.now().Sub(startedAt).Milliseconds()), tags)
}
