package gojob

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-escrow-pipeline/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestSweepMessageRoundTrip(t *testing.T) {
	msg := SweepMessage(core.JobProcessPaidEscrowCompletion, " tick-1 ")
	if msg.JobID != JobIDSweep || msg.IdempotencyKey != "tick-1" {
		t.Fatalf("unexpected message %#v", msg)
	}
	jobType, err := SweepJobTypeFromMessage(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if jobType != core.JobProcessPaidEscrowCompletion {
		t.Fatalf("expected job type round trip, got %s", jobType)
	}
	if _, err := SweepJobTypeFromMessage(&job.ExecutionMessage{JobID: "other"}); err == nil {
		t.Fatalf("expected foreign job id error")
	}
}

func TestSweepEnqueuer(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	adapter := NewSweepEnqueuer(enqueuer)
	if _, err := adapter.EnqueueSweep(context.Background(), core.JobProcessPendingIncomingWebhooks, "idem-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.Parameters[paramJobType] != string(core.JobProcessPendingIncomingWebhooks) {
		t.Fatalf("expected mapped go-job message, got %#v", enqueuer.last)
	}
	if _, err := adapter.EnqueueSweep(context.Background(), "process-everything", ""); !errors.Is(err, core.ErrInvalidSweepJobType) {
		t.Fatalf("expected invalid job type, got %v", err)
	}
}

func TestSweepWorkerAcksSuccessfulSweep(t *testing.T) {
	delivery := &stubQueueDelivery{msg: SweepMessage(core.JobProcessPendingOutgoingWebhooks, "idem-ok")}
	sweeps := &stubSweeps{}
	hook := &capturingHook{}
	w, err := NewSweepWorker(&stubQueueDequeuer{delivery: delivery}, sweeps, WithHook(hook))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !delivery.acked || delivery.nacked {
		t.Fatalf("expected ack only")
	}
	if len(sweeps.calls) != 1 || sweeps.calls[0] != core.JobProcessPendingOutgoingWebhooks {
		t.Fatalf("unexpected sweeps %v", sweeps.calls)
	}
	if hook.starts != 1 || hook.successes != 1 {
		t.Fatalf("expected start and success hooks, got %+v", hook)
	}
}

func TestSweepWorkerNackRetryPolicyBoundaries(t *testing.T) {
	delivery := &stubQueueDelivery{msg: SweepMessage(core.JobProcessPendingEscrowCompletion, "idem-fail")}
	hook := &capturingHook{}
	w, err := NewSweepWorker(&stubQueueDequeuer{delivery: delivery}, &stubSweeps{err: errors.New("db down")},
		WithHook(hook),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: 4 * time.Second, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}),
	)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	wantDelays := []time.Duration{4 * time.Second, 8 * time.Second}
	for attempt, want := range wantDelays {
		if err := w.ProcessNext(context.Background()); err != nil {
			t.Fatalf("process attempt %d: %v", attempt+1, err)
		}
		if delivery.nackOpts.Disposition != queue.NackDispositionRetry || delivery.nackOpts.Delay != want {
			t.Fatalf("attempt %d: expected requeue after %s, got %+v", attempt+1, want, delivery.nackOpts)
		}
	}
	if err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process final attempt: %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter on max attempts, got %+v", delivery.nackOpts)
	}
	if delivery.nackOpts.Delay != 10*time.Second {
		t.Fatalf("expected delay bounded by max delay, got %s", delivery.nackOpts.Delay)
	}
	if hook.retries != 2 || hook.failures != 1 || hook.last.Attempt != 3 {
		t.Fatalf("unexpected hook counts %+v", hook)
	}
}

func TestRetryPolicyFailsWithoutDeadLetter(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2}
	opts := policy.NormalizeAttempt(queue.NackOptions{Delay: -time.Second, Reason: " boom "}, 1)
	if opts.Disposition != queue.NackDispositionRetry || opts.Delay != 0 || opts.Reason != "boom" {
		t.Fatalf("expected normalized retry, got %+v", opts)
	}
	if opts := policy.NormalizeAttempt(opts, 2); opts.Disposition != queue.NackDispositionFailed {
		t.Fatalf("expected failed once attempts run out, got %+v", opts)
	}
	if err := queue.ValidateNackOptions(policy.NormalizeAttempt(queue.NackOptions{}, 5)); err != nil {
		t.Fatalf("expected valid nack options: %v", err)
	}
}

func TestSweepEnqueuerActsAsSweepTrigger(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	trigger := NewSweepEnqueuer(enqueuer)
	outcome, err := trigger.Run(context.Background(), core.JobProcessPaidEscrowCompletion)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.JobType != core.JobProcessPaidEscrowCompletion || outcome.Skipped {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if enqueuer.last == nil || !strings.HasPrefix(enqueuer.last.IdempotencyKey, string(core.JobProcessPaidEscrowCompletion)+":") {
		t.Fatalf("expected tick keyed message, got %#v", enqueuer.last)
	}
}

func TestSweepWorkerDeadLettersInvalidMessages(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDSweep, Parameters: map[string]any{paramJobType: "nope"}}}
	sweeps := &stubSweeps{}
	w, _ := NewSweepWorker(&stubQueueDequeuer{delivery: delivery}, sweeps)
	if err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter || len(sweeps.calls) != 0 {
		t.Fatalf("expected dead letter without sweep, got %+v", delivery.nackOpts)
	}
}

func TestSweepWorkerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dequeuer := &stubQueueDequeuer{err: errors.New("broker unavailable"), onDequeue: cancel}
	w, _ := NewSweepWorker(dequeuer, &stubSweeps{}, WithIdleWait(time.Millisecond))
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}

type stubSweeps struct {
	calls []core.SweepJobType
	err   error
}

func (s *stubSweeps) Run(_ context.Context, jobType core.SweepJobType) (core.SweepOutcome, error) {
	s.calls = append(s.calls, jobType)
	return core.SweepOutcome{JobType: jobType}, s.err
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch-1"}, nil
}

type stubQueueDequeuer struct {
	delivery  queue.Delivery
	err       error
	onDequeue func()
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	if s.onDequeue != nil {
		s.onDequeue()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	starts, successes, failures, retries int
	last                                 worker.Event
}

func (h *capturingHook) OnStart(context.Context, worker.Event) { h.starts++ }
func (h *capturingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.successes++
	h.last = event
}
func (h *capturingHook) OnFailure(_ context.Context, event worker.Event) {
	h.failures++
	h.last = event
}
func (h *capturingHook) OnRetry(_ context.Context, event worker.Event) {
	h.retries++
	h.last = event
}
