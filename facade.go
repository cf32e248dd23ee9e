package pipeline

import (
	"fmt"

	"github.com/goliatone/go-escrow-pipeline/adapters/gocommand"
	pipelinecommand "github.com/goliatone/go-escrow-pipeline/command"
	"github.com/goliatone/go-escrow-pipeline/core"
	pipelinequery "github.com/goliatone/go-escrow-pipeline/query"
	sqlstore "github.com/goliatone/go-escrow-pipeline/store/sql"
)

type Commands struct {
	RunSweep         *pipelinecommand.RunSweepCommand
	AcceptWebhook    *pipelinecommand.AcceptWebhookCommand
	ReleaseSweepLock *pipelinecommand.ReleaseSweepLockCommand
}

type Queries struct {
	ListSweepLocks *pipelinequery.ListSweepLocksQuery
	ListQueueItems *pipelinequery.ListQueueItemsQuery
}

// Facade groups the command and query handlers built over one pipeline.
type Facade struct {
	pipeline *core.Pipeline
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	acceptor pipelinecommand.WebhookAcceptor
	readers  map[pipelinequery.QueueName]pipelinequery.QueueReader
}

// WithWebhookAcceptor enables the accept webhook command.
func WithWebhookAcceptor(acceptor pipelinecommand.WebhookAcceptor) FacadeOption {
	return func(o *facadeOptions) {
		o.acceptor = acceptor
	}
}

func WithQueueReaders(readers map[pipelinequery.QueueName]pipelinequery.QueueReader) FacadeOption {
	return func(o *facadeOptions) {
		if o.readers == nil {
			o.readers = map[pipelinequery.QueueName]pipelinequery.QueueReader{}
		}
		for name, reader := range readers {
			o.readers[name] = reader
		}
	}
}

// WithRepositoryFactory lists queue rows straight from the SQL stores.
func WithRepositoryFactory(factory *sqlstore.RepositoryFactory) FacadeOption {
	return WithQueueReaders(QueueReadersFromFactory(factory))
}

func NewFacade(pipeline *core.Pipeline, opts ...FacadeOption) (*Facade, error) {
	if pipeline == nil || pipeline.Sweeps == nil || pipeline.Locks == nil {
		return nil, fmt.Errorf("pipeline: pipeline with sweeps and locks is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{pipeline: pipeline}
	facade.commands = Commands{
		RunSweep:         pipelinecommand.NewRunSweepCommand(pipeline.Sweeps),
		ReleaseSweepLock: pipelinecommand.NewReleaseSweepLockCommand(pipeline.Locks),
	}
	if cfg.acceptor != nil {
		facade.commands.AcceptWebhook = pipelinecommand.NewAcceptWebhookCommand(cfg.acceptor)
	}
	facade.queries = Queries{
		ListSweepLocks: pipelinequery.NewListSweepLocksQuery(pipeline.Locks),
	}
	if len(cfg.readers) > 0 {
		facade.queries.ListQueueItems = pipelinequery.NewListQueueItemsQuery(cfg.readers)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Pipeline() *core.Pipeline {
	if f == nil {
		return nil
	}
	return f.pipeline
}

// BusConfig hands every wired handler to the go-command bus.
func (f *Facade) BusConfig() gocommand.BusConfig {
	if f == nil {
		return gocommand.BusConfig{}
	}
	return gocommand.BusConfig{
		RunSweep:         f.commands.RunSweep,
		AcceptWebhook:    f.commands.AcceptWebhook,
		ReleaseSweepLock: f.commands.ReleaseSweepLock,
		ListSweepLocks:   f.queries.ListSweepLocks,
		ListQueueItems:   f.queries.ListQueueItems,
	}
}

func QueueReadersFromFactory(factory *sqlstore.RepositoryFactory) map[pipelinequery.QueueName]pipelinequery.QueueReader {
	if factory == nil || factory.EscrowCompletionStore() == nil {
		return nil
	}
	return map[pipelinequery.QueueName]pipelinequery.QueueReader{
		pipelinequery.QueueIncomingWebhooks:  pipelinequery.NewQueueReader[*core.IncomingWebhook](factory.IncomingWebhookStore()),
		pipelinequery.QueueEscrowCompletions: pipelinequery.NewQueueReader[*core.EscrowCompletion](factory.EscrowCompletionStore()),
		pipelinequery.QueueOutgoingWebhooks:  pipelinequery.NewQueueReader[*core.OutgoingWebhook](factory.OutgoingWebhookStore()),
	}
}
