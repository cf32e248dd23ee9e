package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOutgoingWebhookEnqueueDedupesByPayloadAndURL(t *testing.T) {
	clock := newTestClock()
	store := newMemoryOutgoingStore()
	service, err := NewOutgoingWebhookService(OutgoingWebhookDependencies{
		Store:  store,
		Sender: &stubSender{},
		Policy: RetryPolicy{MaxRetries: 3, Strategy: BackoffExponential, BaseDelay: time.Second},
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("new outgoing webhook service: %v", err)
	}
	payload := WebhookPayload{ChainID: 1, EscrowAddress: testEscrowAddress, EventType: EventTypeEscrowCompleted}

	results := []CreateResult{}
	for _, url := range []string{"https://a.example.com", "https://a.example.com", "https://b.example.com"} {
		result, err := service.Enqueue(context.Background(), url, payload)
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		results = append(results, result)
	}
	want := []CreateResult{CreateResultCreated, CreateResultDuplicate, CreateResultCreated}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("enqueue %d: expected %s, got %s", i, want[i], results[i])
		}
	}
}

func TestOutgoingWebhookDeliveryMarksCompletedOrBacksOff(t *testing.T) {
	clock := newTestClock()
	store := newMemoryOutgoingStore()
	sender := &stubSender{errs: map[string]error{"https://down.example.com": errors.New("503")}}
	service, err := NewOutgoingWebhookService(OutgoingWebhookDependencies{
		Store:  store,
		Sender: sender,
		Policy: RetryPolicy{MaxRetries: 3, Strategy: BackoffExponential, BaseDelay: 30 * time.Second, MaxDelay: time.Hour},
		Now:    clock.Now,
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
	stats, err := service.ProcessPending(context.Background())
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if stats.Advanced != 1 || stats.Retried != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for _, item := range store.all() {
		switch item.URL {
		case "https://up.example.com":
			if item.Status != StatusCompleted {
				t.Fatalf("expected delivered webhook completed, got %s", item.Status)
			}
		case "https://down.example.com":
			if item.Status != StatusPending {
				t.Fatalf("expected failed delivery to stay pending, got %s", item.Status)
			}
			if want := clock.Now().Add(30 * time.Second); !item.WaitUntil.Equal(want) {
				t.Fatalf("expected wait_until %s, got %s", want, item.WaitUntil)
			}
		}
	}
}

// throttlingSender answers the first delivery with a 429 and then holds
// every delivery until the advertised window has passed.
type throttlingSender struct {
	now       func() time.Time
	window    time.Duration
	heldUntil time.Time
	posts     int
}

func (s *throttlingSender) Send(context.Context, string, WebhookPayload) error {
	now := s.now()
	if now.Before(s.heldUntil) {
		return DeferFor(errors.New("receiver throttled"), s.heldUntil.Sub(now))
	}
	s.posts++
	if s.posts == 1 {
		s.heldUntil = now.Add(s.window)
		return errors.New("status 429")
	}
	return nil
}

func TestOutgoingWebhookThrottledReceiverIsRedeliveredAfterWindow(t *testing.T) {
	clock := newTestClock()
	store := newMemoryOutgoingStore()
	sender := &throttlingSender{now: clock.Now, window: 2 * time.Hour}
	service, err := NewOutgoingWebhookService(OutgoingWebhookDependencies{
		Store:  store,
		Sender: sender,
		Policy: RetryPolicy{MaxRetries: 5, Strategy: BackoffExponential, BaseDelay: 30 * time.Second, MaxDelay: 30 * time.Minute},
		Now:    clock.Now,
	})
	if err != nil {
		t.Fatalf("new outgoing webhook service: %v", err)
	}
	payload := WebhookPayload{ChainID: 1, EscrowAddress: testEscrowAddress, EventType: EventTypeEscrowCompleted}
	if _, err := service.Enqueue(context.Background(), "https://busy.example.com", payload); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deferred := 0
	for i := 0; i < 300 && store.first().Status == StatusPending; i++ {
		clock.Advance(time.Minute)
		stats, err := service.ProcessPending(context.Background())
		if err != nil {
			t.Fatalf("process pending: %v", err)
		}
		deferred += stats.Deferred
		if stored := store.first(); stored.Status == StatusPending && stored.RetriesCount > 1 {
			t.Fatalf("expected held deliveries to keep their retry budget, got %d retries", stored.RetriesCount)
		}
	}

	if got := store.first().Status; got != StatusCompleted {
		t.Fatalf("expected webhook delivered after the throttle window, got %s", got)
	}
	if sender.posts != 2 {
		t.Fatalf("expected the 429 and one redelivery, got %d posts", sender.posts)
	}
	if deferred == 0 {
		t.Fatalf("expected at least one deferred sweep")
	}
}
