package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type OutgoingWebhookService struct {
	store     OutgoingWebhookStore
	sender    WebhookSender
	processor *QueueProcessor[*OutgoingWebhook]
	logger    Logger
	now       func() time.Time
}

type OutgoingWebhookDependencies struct {
	Store     OutgoingWebhookStore
	Sender    WebhookSender
	Policy    RetryPolicy
	BatchSize int
	Logger    Logger
	Metrics   MetricsRecorder
	Now       func() time.Time
}

func NewOutgoingWebhookService(deps OutgoingWebhookDependencies) (*OutgoingWebhookService, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("core: outgoing webhook store is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	processor, err := NewQueueProcessor[*OutgoingWebhook](deps.Store, QueueProcessorConfig{
		Name:      "outgoing_webhooks",
		Policy:    deps.Policy,
		BatchSize: deps.BatchSize,
	}, deps.Logger, deps.Metrics, deps.Now)
	if err != nil {
		return nil, err
	}
	return &OutgoingWebhookService{
		store:     deps.Store,
		sender:    deps.Sender,
		processor: processor,
		logger:    deps.Logger,
		now:       deps.Now,
	}, nil
}

// NewOutgoingWebhook builds a pending row keyed by payload and url.
func NewOutgoingWebhook(payload WebhookPayload, url string, now time.Time) (*OutgoingWebhook, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("core: outgoing webhook url is required")
	}
	payload = payload.Normalized()
	hash, err := OutgoingWebhookHash(payload, url)
	if err != nil {
		return nil, err
	}
	return &OutgoingWebhook{
		QueueItem: NewQueueItem(payload.ChainID, payload.EscrowAddress, now),
		Hash:      hash,
		URL:       url,
		Payload:   payload,
	}, nil
}

// Enqueue schedules a delivery. A delivery already scheduled for the same
// payload and url reports CreateResultDuplicate.
func (s *OutgoingWebhookService) Enqueue(ctx context.Context, url string, payload WebhookPayload) (CreateResult, error) {
	if s == nil || s.store == nil {
		return "", fmt.Errorf("core: outgoing webhook service is not configured")
	}
	item, err := NewOutgoingWebhook(payload, url, s.now())
	if err != nil {
		return "", err
	}
	return s.store.CreateUnique(ctx, item)
}

func (s *OutgoingWebhookService) ProcessPending(ctx context.Context) (SweepStats, error) {
	if s == nil || s.processor == nil {
		return SweepStats{}, fmt.Errorf("core: outgoing webhook service is not configured")
	}
	return s.processor.Sweep(ctx, StatusPending, s.deliver)
}

func (s *OutgoingWebhookService) deliver(ctx context.Context, item *OutgoingWebhook) error {
	if s.sender == nil {
		return fmt.Errorf("core: webhook sender is not configured")
	}
	if err := s.sender.Send(ctx, item.URL, item.Payload); err != nil {
		return err
	}
	item.Status = StatusCompleted
	return nil
}
