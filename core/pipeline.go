package core

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Pipeline wires the queues, their services and the guarded sweep runner.
type Pipeline struct {
	config         Config
	logger         Logger
	loggerProvider LoggerProvider

	Incoming    *IncomingWebhookService
	Completions *EscrowCompletionService
	Outgoing    *OutgoingWebhookService
	Locks       *SweepLockService
	Sweeps      *SweepRunner
}

func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	builder := defaultPipelineBuilder(cfg)
	for _, opt := range opts {
		if opt != nil {
			opt(&builder)
		}
	}

	resolved, err := builder.resolve(context.Background())
	if err != nil {
		return nil, fmt.Errorf("core: resolve config: %w", err)
	}

	provider, logger := glog.Resolve("pipeline", builder.loggerProvider, builder.logger)
	now := builder.now
	if now == nil {
		now = time.Now
	}
	named := func(name string) Logger {
		if provider == nil {
			return logger
		}
		return provider.GetLogger("pipeline." + name)
	}

	switch {
	case builder.escrowCompletions == nil:
		return nil, fmt.Errorf("core: escrow completion store is required")
	case builder.incomingWebhooks == nil:
		return nil, fmt.Errorf("core: incoming webhook store is required")
	case builder.outgoingWebhooks == nil:
		return nil, fmt.Errorf("core: outgoing webhook store is required")
	case builder.sweepLocks == nil:
		return nil, fmt.Errorf("core: sweep lock store is required")
	}

	completions, err := NewEscrowCompletionService(EscrowCompletionDependencies{
		Store:      builder.escrowCompletions,
		Webhooks:   builder.outgoingWebhooks,
		Escrows:    builder.escrows,
		Operators:  builder.operators,
		Results:    builder.results,
		Payouts:    builder.payouts,
		Reputation: builder.reputation,
		Policy:     resolved.RetryPolicyFor(resolved.Queues.EscrowCompletions),
		BatchSize:  resolved.Retry.BatchSize,
		TxOptions:  resolved.TxOptions(),
		Logger:     named("escrow_completions"),
		Metrics:    builder.metricsRecorder,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}
	incoming, err := NewIncomingWebhookService(IncomingWebhookDependencies{
		Store:       builder.incomingWebhooks,
		Completions: completions,
		Policy:      resolved.RetryPolicyFor(resolved.Queues.IncomingWebhooks),
		BatchSize:   resolved.Retry.BatchSize,
		Logger:      named("incoming_webhooks"),
		Metrics:     builder.metricsRecorder,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	outgoing, err := NewOutgoingWebhookService(OutgoingWebhookDependencies{
		Store:     builder.outgoingWebhooks,
		Sender:    builder.sender,
		Policy:    resolved.RetryPolicyFor(resolved.Queues.OutgoingWebhooks),
		BatchSize: resolved.Retry.BatchSize,
		Logger:    named("outgoing_webhooks"),
		Metrics:   builder.metricsRecorder,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}
	locks, err := NewSweepLockService(builder.sweepLocks, named("sweep_locks"), now)
	if err != nil {
		return nil, err
	}
	sweeps, err := NewSweepRunner(locks, named("sweeps"), builder.metricsRecorder, now)
	if err != nil {
		return nil, err
	}

	pipeline := &Pipeline{
		config:         resolved,
		logger:         logger,
		loggerProvider: provider,
		Incoming:       incoming,
		Completions:    completions,
		Outgoing:       outgoing,
		Locks:          locks,
		Sweeps:         sweeps,
	}
	for jobType, fn := range map[SweepJobType]SweepFunc{
		JobProcessPendingIncomingWebhooks: statsOnly(incoming.ProcessPending),
		JobProcessPendingEscrowCompletion: statsOnly(completions.ProcessPending),
		JobProcessPaidEscrowCompletion:    statsOnly(completions.ProcessPaid),
		JobProcessPendingOutgoingWebhooks: statsOnly(outgoing.ProcessPending),
	} {
		if err := sweeps.Register(jobType, fn); err != nil {
			return nil, err
		}
	}
	return pipeline, nil
}

func (p *Pipeline) Config() Config {
	if p == nil {
		return Config{}
	}
	return p.config
}

func (p *Pipeline) Logger() Logger {
	if p == nil {
		return glog.Nop()
	}
	return p.logger
}

func (p *Pipeline) LoggerProvider() LoggerProvider {
	if p == nil {
		return nil
	}
	return p.loggerProvider
}

func statsOnly(fn func(context.Context) (SweepStats, error)) SweepFunc {
	return func(ctx context.Context) error {
		_, err := fn(ctx)
		return err
	}
}
