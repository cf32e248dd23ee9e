package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	pipelinecommand "github.com/goliatone/go-escrow-pipeline/command"
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/inbound"
	"github.com/goliatone/go-escrow-pipeline/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterCommand(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// BusConfig names the handlers a Bus subscribes. Nil handlers are skipped.
type BusConfig struct {
	RunSweep         *pipelinecommand.RunSweepCommand
	AcceptWebhook    *pipelinecommand.AcceptWebhookCommand
	ReleaseSweepLock *pipelinecommand.ReleaseSweepLockCommand
	ListSweepLocks   *query.ListSweepLocksQuery
	ListQueueItems   *query.ListQueueItemsQuery
}

// Bus subscribes the pipeline commands and queries on the go-command
// dispatcher and exposes typed helpers around Dispatch and Query.
type Bus struct {
	adapter       *RegistryAdapter
	subscriptions []commanddispatcher.Subscription
}

func NewBus(adapter *RegistryAdapter, cfg BusConfig) (*Bus, error) {
	if adapter == nil {
		adapter = NewRegistryAdapter(nil)
	}
	bus := &Bus{adapter: adapter}
	register := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			return err
		}
		bus.subscriptions = append(bus.subscriptions, sub)
		return nil
	}
	var errs []error
	if cfg.RunSweep != nil {
		errs = append(errs, register(RegisterAndSubscribe[pipelinecommand.RunSweepMessage](adapter, cfg.RunSweep)))
	}
	if cfg.AcceptWebhook != nil {
		errs = append(errs, register(RegisterAndSubscribe[pipelinecommand.AcceptWebhookMessage](adapter, cfg.AcceptWebhook)))
	}
	if cfg.ReleaseSweepLock != nil {
		errs = append(errs, register(RegisterAndSubscribe[pipelinecommand.ReleaseSweepLockMessage](adapter, cfg.ReleaseSweepLock)))
	}
	if cfg.ListSweepLocks != nil {
		errs = append(errs, register(RegisterAndSubscribeQuery[query.ListSweepLocksMessage, []core.SweepLock](adapter, cfg.ListSweepLocks)))
	}
	if cfg.ListQueueItems != nil {
		errs = append(errs, register(RegisterAndSubscribeQuery[query.ListQueueItemsMessage, query.QueueItemsPage](adapter, cfg.ListQueueItems)))
	}
	if err := errors.Join(errs...); err != nil {
		bus.Close()
		return nil, err
	}
	if err := adapter.Initialize(); err != nil {
		bus.Close()
		return nil, err
	}
	return bus, nil
}

func (b *Bus) RunSweep(ctx context.Context, jobType string) (core.SweepOutcome, error) {
	collector := command.NewResult[core.SweepOutcome]()
	if err := Dispatch(command.ContextWithResult(ctx, collector), pipelinecommand.RunSweepMessage{JobType: jobType}); err != nil {
		return core.SweepOutcome{}, err
	}
	outcome, _ := collector.Load()
	return outcome, nil
}

func (b *Bus) AcceptWebhook(ctx context.Context, body []byte, signature string) (inbound.AcceptResult, error) {
	collector := command.NewResult[inbound.AcceptResult]()
	msg := pipelinecommand.AcceptWebhookMessage{Body: body, Signature: signature}
	if err := Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		return inbound.AcceptResult{}, err
	}
	result, _ := collector.Load()
	return result, nil
}

func (b *Bus) ReleaseSweepLock(ctx context.Context, jobType string) (pipelinecommand.ReleaseSweepLockResult, error) {
	collector := command.NewResult[pipelinecommand.ReleaseSweepLockResult]()
	if err := Dispatch(command.ContextWithResult(ctx, collector), pipelinecommand.ReleaseSweepLockMessage{JobType: jobType}); err != nil {
		return pipelinecommand.ReleaseSweepLockResult{}, err
	}
	result, _ := collector.Load()
	return result, nil
}

func (b *Bus) ListSweepLocks(ctx context.Context) ([]core.SweepLock, error) {
	return Query[query.ListSweepLocksMessage, []core.SweepLock](ctx, query.ListSweepLocksMessage{})
}

func (b *Bus) ListQueueItems(ctx context.Context, msg query.ListQueueItemsMessage) (query.QueueItemsPage, error) {
	return Query[query.ListQueueItemsMessage, query.QueueItemsPage](ctx, msg)
}

// Close unsubscribes every handler the bus registered.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	for _, sub := range b.subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	b.subscriptions = nil
}
