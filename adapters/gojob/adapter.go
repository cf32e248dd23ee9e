package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-escrow-pipeline/adapters/gologger"
	"github.com/goliatone/go-escrow-pipeline/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDSweep      = "pipeline.sweep"
	paramJobType    = "job_type"
	defaultIdleWait = time.Second
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
// Retries past MaxAttempts become failed, or dead letters when
// DeadLetterOnMax is set.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	return out
}

// DelayFor doubles BaseDelay per attempt.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// SweepMessage builds the go-job message that triggers one sweep.
func SweepMessage(jobType core.SweepJobType, idempotencyKey string) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDSweep,
		ScriptPath:     JobIDSweep + "." + string(jobType),
		Parameters:     map[string]any{paramJobType: string(jobType)},
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
	}
}

// SweepJobTypeFromMessage reads the sweep job type back from a delivery.
func SweepJobTypeFromMessage(msg *job.ExecutionMessage) (core.SweepJobType, error) {
	if msg == nil {
		return "", fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDSweep {
		return "", fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	raw, _ := msg.Parameters[paramJobType].(string)
	return core.ParseSweepJobType(raw)
}

// SweepEnqueuer publishes sweep triggers to a go-job queue. It satisfies
// core.SweepTrigger so the scheduler can enqueue instead of sweeping inline.
type SweepEnqueuer struct {
	enqueuer queue.Enqueuer
	now      func() time.Time
}

func NewSweepEnqueuer(enqueuer queue.Enqueuer) *SweepEnqueuer {
	return &SweepEnqueuer{enqueuer: enqueuer, now: time.Now}
}

func (e *SweepEnqueuer) EnqueueSweep(ctx context.Context, jobType core.SweepJobType, idempotencyKey string) (queue.EnqueueReceipt, error) {
	if e == nil || e.enqueuer == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	if _, err := core.ParseSweepJobType(string(jobType)); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return e.enqueuer.Enqueue(ctx, SweepMessage(jobType, idempotencyKey))
}

// Run enqueues one trigger keyed by job type and tick. The sweep itself runs
// on whichever worker dequeues it.
func (e *SweepEnqueuer) Run(ctx context.Context, jobType core.SweepJobType) (core.SweepOutcome, error) {
	if e == nil {
		return core.SweepOutcome{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	key := fmt.Sprintf("%s:%d", jobType, e.now().UnixNano())
	if _, err := e.EnqueueSweep(ctx, jobType, key); err != nil {
		return core.SweepOutcome{JobType: jobType}, err
	}
	return core.SweepOutcome{JobType: jobType}, nil
}

type WorkerOption func(*SweepWorker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *SweepWorker) {
		w.policy = policy
	}
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *SweepWorker) {
		if hook != nil {
			w.hooks = append(w.hooks, hook)
		}
	}
}

func WithIdleWait(wait time.Duration) WorkerOption {
	return func(w *SweepWorker) {
		if wait > 0 {
			w.idleWait = wait
		}
	}
}

func WithLogger(logger core.Logger) WorkerOption {
	return func(w *SweepWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithNow(now func() time.Time) WorkerOption {
	return func(w *SweepWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// SweepWorker consumes sweep messages from a go-job queue and runs them
// through the sweep runner. A skipped sweep is acknowledged; the next
// scheduled message covers it.
type SweepWorker struct {
	dequeuer queue.Dequeuer
	sweeps   core.SweepTrigger
	policy   RetryPolicy
	hooks    []worker.Hook
	idleWait time.Duration
	now      func() time.Time
	logger   core.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewSweepWorker(dequeuer queue.Dequeuer, sweeps core.SweepTrigger, opts ...WorkerOption) (*SweepWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if sweeps == nil {
		return nil, fmt.Errorf("gojob: sweep trigger is required")
	}
	w := &SweepWorker{
		dequeuer: dequeuer,
		sweeps:   sweeps,
		idleWait: defaultIdleWait,
		now:      time.Now,
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.logger == nil {
		_, w.logger = gologger.Resolve("gojob", nil, nil)
	}
	return w, nil
}

// ProcessNext handles one delivery. An empty queue is not an error.
func (w *SweepWorker) ProcessNext(ctx context.Context) error {
	_, err := w.processNext(ctx)
	return err
}

func (w *SweepWorker) processNext(ctx context.Context) (bool, error) {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	msg := delivery.Message()
	key := attemptKey(msg)
	attempt := w.nextAttempt(key)
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: w.now()}
	w.emit(ctx, event, worker.Hook.OnStart)

	jobType, err := SweepJobTypeFromMessage(msg)
	if err != nil {
		w.forget(key)
		event.Err = err
		event.Duration = w.now().Sub(event.StartedAt)
		w.emit(ctx, event, worker.Hook.OnFailure)
		return true, delivery.Nack(ctx, queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Reason: err.Error()})
	}

	_, runErr := w.sweeps.Run(ctx, jobType)
	event.Duration = w.now().Sub(event.StartedAt)
	if runErr == nil {
		w.forget(key)
		w.emit(ctx, event, worker.Hook.OnSuccess)
		return true, delivery.Ack(ctx)
	}

	opts := w.policy.NormalizeAttempt(queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       w.policy.DelayFor(attempt),
		Reason:      runErr.Error(),
	}, attempt)
	event.Err = runErr
	event.Delay = opts.Delay
	if opts.Disposition == queue.NackDispositionRetry {
		w.emit(ctx, event, worker.Hook.OnRetry)
	} else {
		w.forget(key)
		w.emit(ctx, event, worker.Hook.OnFailure)
	}
	return true, delivery.Nack(ctx, opts)
}

// Run processes deliveries until ctx is cancelled.
func (w *SweepWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		handled, err := w.processNext(ctx)
		if err == nil && handled {
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			w.logger.Warn("sweep queue poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.idleWait):
		}
	}
}

func (w *SweepWorker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *SweepWorker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func (w *SweepWorker) emit(ctx context.Context, event worker.Event, fn func(worker.Hook, context.Context, worker.Event)) {
	for _, hook := range w.hooks {
		fn(hook, ctx, event)
	}
}

func attemptKey(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return msg.ScriptPath
}

// LoggingHook logs worker lifecycle events through the pipeline logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	_, logger = gologger.Resolve("gojob", nil, logger)
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("sweep job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("sweep job finished", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("sweep job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("sweep job retrying", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	fields := []any{"attempt", event.Attempt, "duration", event.Duration}
	if event.Message != nil {
		fields = append(fields, "script_path", event.Message.ScriptPath)
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay)
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err)
	}
	return fields
}

var (
	_ worker.Hook       = (*LoggingHook)(nil)
	_ core.SweepTrigger = (*SweepEnqueuer)(nil)
)
