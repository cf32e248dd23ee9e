package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var testEscrowAddress = "0x52fe3ac2ae3b5a4f1d77ad11ff1fa3b6e3b0b5a2"

type memoryQueueStore[T Retryable] struct {
	mu        sync.Mutex
	next      int
	items     []T
	key       func(T) string
	clone     func(T) T
	findErr   error
	createErr error
	updateErr error
	updates   int
}

func newMemoryEscrowStore() *memoryQueueStore[*EscrowCompletion] {
	return &memoryQueueStore[*EscrowCompletion]{
		key: func(item *EscrowCompletion) string {
			return fmt.Sprintf("%d:%s", item.ChainID, item.EscrowAddress)
		},
		clone: func(item *EscrowCompletion) *EscrowCompletion {
			copied := *item
			return &copied
		},
	}
}

func newMemoryIncomingStore() *memoryQueueStore[*IncomingWebhook] {
	return &memoryQueueStore[*IncomingWebhook]{
		key: func(item *IncomingWebhook) string {
			return fmt.Sprintf("%d:%s:%s", item.ChainID, item.EscrowAddress, item.EventType)
		},
		clone: func(item *IncomingWebhook) *IncomingWebhook {
			copied := *item
			copied.EventData = copyAnyMap(item.EventData)
			return &copied
		},
	}
}

func newMemoryOutgoingStore() *memoryQueueStore[*OutgoingWebhook] {
	return &memoryQueueStore[*OutgoingWebhook]{
		key: func(item *OutgoingWebhook) string {
			return item.Hash
		},
		clone: func(item *OutgoingWebhook) *OutgoingWebhook {
			copied := *item
			copied.Payload = item.Payload.Normalized()
			return &copied
		},
	}
}

func (s *memoryQueueStore[T]) FindEligible(_ context.Context, query EligibilityQuery) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := make([]T, 0, len(s.items))
	for _, item := range s.items {
		queued := item.Queue()
		if queued.Status != query.Status || queued.RetriesCount > query.MaxRetries || queued.WaitUntil.After(query.Now) {
			continue
		}
		out = append(out, s.clone(item))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Queue().CreatedAt.Before(out[j].Queue().CreatedAt)
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (s *memoryQueueStore[T]) CreateUnique(_ context.Context, item T) (CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	for _, existing := range s.items {
		if s.key(existing) == s.key(item) {
			return CreateResultDuplicate, nil
		}
	}
	s.next++
	item.Queue().ID = fmt.Sprintf("item-%d", s.next)
	s.items = append(s.items, s.clone(item))
	return CreateResultCreated, nil
}

func (s *memoryQueueStore[T]) Update(_ context.Context, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for i, existing := range s.items {
		if existing.Queue().ID == item.Queue().ID {
			s.items[i] = s.clone(item)
			s.updates++
			return nil
		}
	}
	return fmt.Errorf("memory store: item %s not found", item.Queue().ID)
}

func (s *memoryQueueStore[T]) all() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, s.clone(item))
	}
	return out
}

func (s *memoryQueueStore[T]) first() T {
	items := s.all()
	if len(items) == 0 {
		var zero T
		return zero
	}
	return items[0]
}

type memorySweepLockStore struct {
	mu    sync.Mutex
	next  int
	locks map[string]SweepLock
}

func newMemorySweepLockStore() *memorySweepLockStore {
	return &memorySweepLockStore{locks: map[string]SweepLock{}}
}

func (s *memorySweepLockStore) GetByJobType(_ context.Context, jobType SweepJobType) (SweepLock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lock := range s.locks {
		if lock.JobType == jobType {
			return lock, true, nil
		}
	}
	return SweepLock{}, false, nil
}

func (s *memorySweepLockStore) Create(_ context.Context, lock SweepLock) (SweepLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.locks {
		if existing.JobType == lock.JobType {
			return SweepLock{}, fmt.Errorf("memory lock store: duplicate job type %s", lock.JobType)
		}
	}
	s.next++
	lock.ID = fmt.Sprintf("lock-%d", s.next)
	s.locks[lock.ID] = lock
	return lock, nil
}

func (s *memorySweepLockStore) Update(_ context.Context, lock SweepLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[lock.ID]; !ok {
		return fmt.Errorf("memory lock store: lock %s not found", lock.ID)
	}
	s.locks[lock.ID] = lock
	return nil
}

func (s *memorySweepLockStore) GetByID(_ context.Context, id string) (SweepLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		return SweepLock{}, fmt.Errorf("memory lock store: lock %s not found", id)
	}
	return lock, nil
}

func (s *memorySweepLockStore) List(context.Context) ([]SweepLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SweepLock, 0, len(s.locks))
	for _, lock := range s.locks {
		out = append(out, lock)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobType < out[j].JobType })
	return out, nil
}

type stubEscrowClient struct {
	status         EscrowStatus
	statusErr      error
	completeErr    error
	completeCalls  int
	launcher       string
	exchange       string
	recording      string
	addressErr     error
	lastTxOptions  TxOptions
	completedCalls []string
}

func (c *stubEscrowClient) GetStatus(context.Context, string) (EscrowStatus, error) {
	if c.statusErr != nil {
		return "", c.statusErr
	}
	if c.status == "" {
		return EscrowStatusPaid, nil
	}
	return c.status, nil
}

func (c *stubEscrowClient) Complete(_ context.Context, escrowAddress string, opts TxOptions) error {
	c.completeCalls++
	c.lastTxOptions = opts
	if c.completeErr != nil {
		return c.completeErr
	}
	c.completedCalls = append(c.completedCalls, escrowAddress)
	return nil
}

func (c *stubEscrowClient) BulkPayOut(context.Context, string, []Payout, string, string, TxOptions) error {
	return nil
}

func (c *stubEscrowClient) GetJobLauncherAddress(context.Context, string) (string, error) {
	return c.launcher, c.addressErr
}

func (c *stubEscrowClient) GetExchangeOracleAddress(context.Context, string) (string, error) {
	return c.exchange, c.addressErr
}

func (c *stubEscrowClient) GetRecordingOracleAddress(context.Context, string) (string, error) {
	return c.recording, c.addressErr
}

func (c *stubEscrowClient) GetManifestURL(context.Context, string) (string, error) {
	return "https://storage.example.com/manifest.json", nil
}

func (c *stubEscrowClient) GetIntermediateResultsURL(context.Context, string) (string, error) {
	return "https://storage.example.com/intermediate.json", nil
}

type stubEscrowResolver struct {
	client EscrowClient
	err    error
}

func (r stubEscrowResolver) ForChain(context.Context, int64) (EscrowClient, error) {
	return r.client, r.err
}

type stubOperatorDirectory struct {
	urls map[string]string
	err  error
}

func (d stubOperatorDirectory) GetOperator(_ context.Context, chainID int64, address string) (Operator, error) {
	if d.err != nil {
		return Operator{}, d.err
	}
	return Operator{
		ChainID:    chainID,
		Address:    address,
		WebhookURL: d.urls[strings.ToLower(address)],
	}, nil
}

type stubResultProcessor struct {
	results FinalResults
	err     error
	calls   int
}

func (p *stubResultProcessor) ComputeResults(context.Context, int64, string) (FinalResults, error) {
	p.calls++
	return p.results, p.err
}

type stubPayoutExecutor struct {
	err   error
	calls []FinalResults
}

func (p *stubPayoutExecutor) ExecutePayout(_ context.Context, _ int64, _ string, results FinalResults) error {
	p.calls = append(p.calls, results)
	return p.err
}

type stubReputationService struct {
	err   error
	calls int
}

func (s *stubReputationService) AssessReputationScores(context.Context, int64, string) error {
	s.calls++
	return s.err
}

type stubSender struct {
	errs  map[string]error
	calls []string
}

func (s *stubSender) Send(_ context.Context, url string, _ WebhookPayload) error {
	s.calls = append(s.calls, url)
	if s.errs == nil {
		return nil
	}
	return s.errs[url]
}

type stubCompletionCreator struct {
	err   error
	calls []string
}

func (c *stubCompletionCreator) CreateEscrowCompletion(_ context.Context, chainID int64, escrowAddress string) (CreateResult, error) {
	c.calls = append(c.calls, fmt.Sprintf("%d:%s", chainID, escrowAddress))
	if c.err != nil {
		return "", c.err
	}
	return CreateResultCreated, nil
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type stubLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *stubLogger) record(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: append([]any(nil), args...)})
}

func (l *stubLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *stubLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *stubLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *stubLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *stubLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *stubLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *stubLogger) WithContext(context.Context) Logger { return l }

func (l *stubLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.level == level && entry.msg == msg {
			return true
		}
	}
	return false
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
