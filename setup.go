package pipeline

import (
	"context"
	"fmt"

	"github.com/goliatone/go-escrow-pipeline/adapters/gologger"
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/inbound"
	"github.com/goliatone/go-escrow-pipeline/ratelimit"
	"github.com/goliatone/go-escrow-pipeline/results"
	sqlstore "github.com/goliatone/go-escrow-pipeline/store/sql"
	"github.com/goliatone/go-escrow-pipeline/webhooks"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

// Dependencies are the collaborators a running pipeline talks to. Store
// accepts a *bun.DB or a persistence client exposing DB().
type Dependencies struct {
	Store     any
	Escrows   core.EscrowClientResolver
	Storage   core.StorageService
	Operators core.OperatorDirectory
	Signer    webhooks.Signer
	// Verifier defaults to checking the signer against the escrow oracles.
	Verifier   webhooks.Verifier
	Reputation core.ReputationService
	Hooks      *ExtensionHooks
	Logger     core.Logger
	// ThrottleCache, when set, fronts the receiver_rate_limits table.
	ThrottleCache repositorycache.CacheService
}

// Runtime is a fully wired pipeline with its SQL stores and HTTP intake.
type Runtime struct {
	Pipeline   *Pipeline
	Stores     *sqlstore.RepositoryFactory
	Processor  *results.Processor
	Dispatcher *webhooks.Dispatcher
	Intake     *inbound.Intake
	Facade     *Facade
	Bundles    map[string]any
}

// Setup wires the SQL stores, result processor, webhook dispatcher and
// intake into a pipeline.
func Setup(cfg Config, deps Dependencies, opts ...Option) (*Runtime, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("pipeline: store is required")
	case deps.Escrows == nil:
		return nil, fmt.Errorf("pipeline: escrow client resolver is required")
	case deps.Storage == nil:
		return nil, fmt.Errorf("pipeline: storage service is required")
	case deps.Operators == nil:
		return nil, fmt.Errorf("pipeline: operator directory is required")
	case deps.Signer == nil:
		return nil, fmt.Errorf("pipeline: webhook signer is required")
	}
	var baseProvider core.LoggerProvider
	if p, ok := deps.Logger.(core.LoggerProvider); ok {
		baseProvider = p
	}
	provider, logger := gologger.Resolve("", baseProvider, deps.Logger)
	named := func(name string) core.Logger {
		return provider.GetLogger(gologger.ComponentName(name))
	}

	stores := sqlstore.NewRepositoryFactory()
	if err := stores.BuildStores(deps.Store); err != nil {
		return nil, err
	}

	resolved, err := core.ResolveOptions(context.Background(), cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("pipeline: resolve config: %w", err)
	}

	registry, err := results.NewDefaultRegistry(deps.Storage)
	if err != nil {
		return nil, err
	}
	if err := deps.Hooks.ApplyCalculatorPacks(registry); err != nil {
		return nil, err
	}
	processor, err := results.NewProcessor(results.ProcessorConfig{
		Escrows:   deps.Escrows,
		Storage:   deps.Storage,
		Registry:  registry,
		TxOptions: resolved.TxOptions(),
		Logger:    named("results"),
	})
	if err != nil {
		return nil, err
	}

	var throttleState ratelimit.StateStore = stores.RateLimitStateStore()
	if deps.ThrottleCache != nil {
		if throttleState, err = sqlstore.NewCachedRateLimitStateStore(throttleState, deps.ThrottleCache); err != nil {
			return nil, err
		}
	}

	dispatcher, err := webhooks.NewDispatcher(deps.Signer,
		webhooks.WithTimeout(resolved.Webhooks.Timeout),
		webhooks.WithSignatureHeader(resolved.Webhooks.SignatureHeader),
		webhooks.WithLogger(named("webhooks")),
		webhooks.WithThrottle(ratelimit.NewAdaptivePolicy(throttleState)),
	)
	if err != nil {
		return nil, err
	}

	pipelineOpts := append([]Option{
		core.WithLogger(logger),
		core.WithLoggerProvider(provider),
		core.WithEscrowClientResolver(deps.Escrows),
		core.WithOperatorDirectory(deps.Operators),
		core.WithResultProcessor(processor),
		core.WithPayoutExecutor(processor),
		core.WithReputationService(deps.Reputation),
		core.WithWebhookSender(dispatcher),
	}, stores.PipelineOptions()...)
	pipelineOpts = append(pipelineOpts, opts...)
	p, err := core.NewPipeline(cfg, append(pipelineOpts, core.WithResolvedConfig(resolved))...)
	if err != nil {
		return nil, err
	}

	verifier := deps.Verifier
	if verifier == nil {
		verifier, err = webhooks.NewEscrowSignerVerifier(deps.Escrows)
		if err != nil {
			return nil, err
		}
	}
	intake, err := inbound.NewIntake(p.Incoming, verifier, named("inbound"))
	if err != nil {
		return nil, err
	}

	facade, err := NewFacade(p, WithWebhookAcceptor(intake), WithRepositoryFactory(stores))
	if err != nil {
		return nil, err
	}
	bundles, err := deps.Hooks.BuildCommandQueryBundles(facade)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Pipeline:   p,
		Stores:     stores,
		Processor:  processor,
		Dispatcher: dispatcher,
		Intake:     intake,
		Facade:     facade,
		Bundles:    bundles,
	}, nil
}
