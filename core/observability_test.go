package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func (m *captureMetricsRecorder) counter(name string) (capturedCounter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, counter := range m.counters {
		if counter.name == name {
			return counter, true
		}
	}
	return capturedCounter{}, false
}

func TestLogWithLevelRedactsFields(t *testing.T) {
	logger := newCaptureLogger()
	logWithLevel(context.Background(), logger, "warn", "signature rejected", map[string]any{
		"chain_id":  int64(80002),
		"signature": "0xdeadbeef",
	})

	records := logger.snapshot()
	if len(records) != 1 || records[0].level != "warn" {
		t.Fatalf("expected one warn record, got %+v", records)
	}
	if records[0].fields["signature"] != RedactedValue {
		t.Fatalf("expected signature redacted, got %v", records[0].fields["signature"])
	}
	if records[0].fields["chain_id"] != int64(80002) {
		t.Fatalf("expected chain_id kept, got %v", records[0].fields["chain_id"])
	}
}

func TestSweepRunnerObservability(t *testing.T) {
	clock := newTestClock()
	logger := newCaptureLogger()
	metrics := &captureMetricsRecorder{}
	locks, err := NewSweepLockService(newMemorySweepLockStore(), logger, clock.Now)
	if err != nil {
		t.Fatalf("new sweep lock service: %v", err)
	}
	runner, err := NewSweepRunner(locks, logger, metrics, clock.Now)
	if err != nil {
		t.Fatalf("new sweep runner: %v", err)
	}
	if err := runner.Register(JobProcessPendingEscrowCompletion, func(context.Context) error {
		clock.Advance(250 * time.Millisecond)
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := runner.Run(context.Background(), JobProcessPendingEscrowCompletion); err != nil {
		t.Fatalf("run: %v", err)
	}
	total, ok := metrics.counter("pipeline.sweep.total")
	if !ok || total.tags["status"] != "success" || total.tags["job_type"] != string(JobProcessPendingEscrowCompletion) {
		t.Fatalf("expected success counter, got %+v", metrics.counters)
	}
	if len(metrics.histograms) != 1 || metrics.histograms[0].value != 250 {
		t.Fatalf("expected 250ms duration histogram, got %+v", metrics.histograms)
	}

	found := false
	for _, record := range logger.snapshot() {
		if record.msg == "sweep finished" && record.fields["duration_ms"] == int64(250) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sweep finished log with duration, got %+v", logger.snapshot())
	}

	if _, err := locks.StartSweep(context.Background(), JobProcessPendingEscrowCompletion); err != nil {
		t.Fatalf("start sweep: %v", err)
	}
	if _, err := runner.Run(context.Background(), JobProcessPendingEscrowCompletion); err != nil {
		t.Fatalf("run while locked: %v", err)
	}
	if _, ok := metrics.counter("pipeline.sweep.skipped"); !ok {
		t.Fatalf("expected skipped counter")
	}
}

func TestQueueProcessorObservability(t *testing.T) {
	clock := newTestClock()
	metrics := &captureMetricsRecorder{}
	sender := &stubSender{errs: map[string]error{"https://down.example.com": context.DeadlineExceeded}}
	service, err := NewOutgoingWebhookService(OutgoingWebhookDependencies{
		Store:   newMemoryOutgoingStore(),
		Sender:  sender,
		Policy:  RetryPolicy{MaxRetries: 3, Strategy: BackoffExponential, BaseDelay: time.Second},
		Metrics: metrics,
		Now:     clock.Now,
	})
	if err != nil {
		t.Fatalf("new outgoing webhook service: %v", err)
	}
	payload := WebhookPayload{ChainID: 1, EscrowAddress: testEscrowAddress, EventType: EventTypeEscrowCompleted}
	for _, url := range []string{"https://up.example.com", "https://down.example.com"} {
		if _, err := service.Enqueue(context.Background(), url, payload); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	clock.Advance(time.Second)
	if _, err := service.ProcessPending(context.Background()); err != nil {
		t.Fatalf("process pending: %v", err)
	}
	expected := map[string]int64{
		"pipeline.queue.claimed":  2,
		"pipeline.queue.advanced": 1,
		"pipeline.queue.retried":  1,
	}
	for name, value := range expected {
		counter, ok := metrics.counter(name)
		if !ok || counter.value != value {
			t.Fatalf("expected %s=%d, got %+v", name, value, counter)
		}
		if counter.tags["status"] != string(StatusPending) {
			t.Fatalf("expected pending status tag on %s, got %v", name, counter.tags)
		}
	}
	if _, ok := metrics.counter("pipeline.queue.failed"); ok {
		t.Fatalf("expected zero-valued failed counter to be skipped")
	}
}
