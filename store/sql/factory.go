package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-escrow-pipeline/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds every pipeline store over one bun database.
type RepositoryFactory struct {
	db *bun.DB

	escrowCompletionStore *EscrowCompletionStore
	incomingWebhookStore  *IncomingWebhookStore
	outgoingWebhookStore  *OutgoingWebhookStore
	sweepLockStore        *SweepLockStore
	rateLimitStateStore   *RateLimitStateStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB.
func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.escrowCompletionStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) EscrowCompletionStore() *EscrowCompletionStore {
	if f == nil {
		return nil
	}
	return f.escrowCompletionStore
}

func (f *RepositoryFactory) IncomingWebhookStore() *IncomingWebhookStore {
	if f == nil {
		return nil
	}
	return f.incomingWebhookStore
}

func (f *RepositoryFactory) OutgoingWebhookStore() *OutgoingWebhookStore {
	if f == nil {
		return nil
	}
	return f.outgoingWebhookStore
}

func (f *RepositoryFactory) SweepLockStore() *SweepLockStore {
	if f == nil {
		return nil
	}
	return f.sweepLockStore
}

func (f *RepositoryFactory) RateLimitStateStore() *RateLimitStateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

// PipelineOptions returns the core options wiring every store.
func (f *RepositoryFactory) PipelineOptions() []core.Option {
	if f == nil {
		return nil
	}
	return []core.Option{
		core.WithEscrowCompletionStore(f.escrowCompletionStore),
		core.WithIncomingWebhookStore(f.incomingWebhookStore),
		core.WithOutgoingWebhookStore(f.outgoingWebhookStore),
		core.WithSweepLockStore(f.sweepLockStore),
	}
}

func (f *RepositoryFactory) initStores() error {
	escrowCompletionStore, err := NewEscrowCompletionStore(f.db)
	if err != nil {
		return err
	}
	incomingWebhookStore, err := NewIncomingWebhookStore(f.db)
	if err != nil {
		return err
	}
	outgoingWebhookStore, err := NewOutgoingWebhookStore(f.db)
	if err != nil {
		return err
	}
	sweepLockStore, err := NewSweepLockStore(f.db)
	if err != nil {
		return err
	}
	rateLimitStateStore, err := NewRateLimitStateStore(f.db)
	if err != nil {
		return err
	}
	f.escrowCompletionStore = escrowCompletionStore
	f.incomingWebhookStore = incomingWebhookStore
	f.outgoingWebhookStore = outgoingWebhookStore
	f.sweepLockStore = sweepLockStore
	f.rateLimitStateStore = rateLimitStateStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
