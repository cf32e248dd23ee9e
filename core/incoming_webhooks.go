package core

import (
	"context"
	"fmt"
	"time"
)

type IncomingWebhookDependencies struct {
	Store       IncomingWebhookStore
	Completions EscrowCompletionCreator
	Policy      RetryPolicy
	BatchSize   int
	Logger      Logger
	Metrics     MetricsRecorder
	Now         func() time.Time
}

type IncomingWebhookService struct {
	store       IncomingWebhookStore
	completions EscrowCompletionCreator
	processor   *QueueProcessor[*IncomingWebhook]
	logger      Logger
	now         func() time.Time
}

func NewIncomingWebhookService(deps IncomingWebhookDependencies) (*IncomingWebhookService, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("core: incoming webhook store is required")
	}
	if deps.Completions == nil {
		return nil, fmt.Errorf("core: escrow completion creator is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	processor, err := NewQueueProcessor[*IncomingWebhook](deps.Store, QueueProcessorConfig{
		Name:      "incoming_webhooks",
		Policy:    deps.Policy,
		BatchSize: deps.BatchSize,
	}, deps.Logger, deps.Metrics, deps.Now)
	if err != nil {
		return nil, err
	}
	return &IncomingWebhookService{
		store:       deps.Store,
		completions: deps.Completions,
		processor:   processor,
		logger:      deps.Logger,
		now:         deps.Now,
	}, nil
}

// Enqueue stores a validated payload as a pending incoming webhook.
func (s *IncomingWebhookService) Enqueue(ctx context.Context, payload WebhookPayload) (CreateResult, error) {
	if s == nil || s.store == nil {
		return "", fmt.Errorf("core: incoming webhook service is not configured")
	}
	payload = payload.Normalized()
	if err := payload.Validate(); err != nil {
		return "", err
	}
	item := &IncomingWebhook{
		QueueItem: NewQueueItem(payload.ChainID, payload.EscrowAddress, s.now()),
		EventType: payload.EventType,
		EventData: payload.EventData,
	}
	return s.store.CreateUnique(ctx, item)
}

func (s *IncomingWebhookService) ProcessPending(ctx context.Context) (SweepStats, error) {
	if s == nil || s.processor == nil {
		return SweepStats{}, fmt.Errorf("core: incoming webhook service is not configured")
	}
	return s.processor.Sweep(ctx, StatusPending, s.handle)
}

func (s *IncomingWebhookService) handle(ctx context.Context, item *IncomingWebhook) error {
	switch item.EventType {
	case EventTypeEscrowCompleted:
		if _, err := s.completions.CreateEscrowCompletion(ctx, item.ChainID, item.EscrowAddress); err != nil {
			return err
		}
	case EventTypeEscrowFailed, EventTypeTaskCreationFailed:
		fields := itemFields(&item.QueueItem)
		fields["event_type"] = string(item.EventType)
		fields["event_data"] = item.EventData
		logWithLevel(ctx, s.logger, "info", "escrow failure event acknowledged", fields)
	default:
		fields := itemFields(&item.QueueItem)
		fields["event_type"] = string(item.EventType)
		return InvariantError(ErrUnsupportedEventType.Error(), fields)
	}
	item.Status = StatusCompleted
	return nil
}
