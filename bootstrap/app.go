package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-command"
	pipeline "github.com/goliatone/go-escrow-pipeline"
	"github.com/goliatone/go-escrow-pipeline/adapters/gocommand"
	"github.com/goliatone/go-escrow-pipeline/adapters/gojob"
	"github.com/goliatone/go-escrow-pipeline/chain"
	"github.com/goliatone/go-escrow-pipeline/core"
	pipelinemigrations "github.com/goliatone/go-escrow-pipeline/migrations"
	"github.com/goliatone/go-escrow-pipeline/operators"
	"github.com/goliatone/go-escrow-pipeline/storage"
	"github.com/goliatone/go-escrow-pipeline/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// App is the pipeline runtime shared by the server and the operator CLI.
type App struct {
	Config  *Config
	Logger  *Logger
	Client  *persistence.Client
	Escrows *chain.Resolver
	Runtime *pipeline.Runtime
	Bus     *gocommand.Bus
	Jobs    *Jobs
}

// Jobs is the go-job sweep queue. It is nil unless PIPELINE_JOB_QUEUE is set.
type Jobs struct {
	Enqueuer *gojob.SweepEnqueuer
	Worker   *gojob.SweepWorker
}

// New opens the database, builds the collaborators and subscribes the
// pipeline commands on the go-command dispatcher. Only one App may be live
// per process because the dispatcher subscriptions are global.
func New(ctx context.Context, cfg *Config, logger *Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = NewLogger(cfg.Log.Level, nil)
	}

	client, err := OpenPersistence(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("bootstrap - OpenPersistence: %w", err)
	}
	app := &App{Config: cfg, Logger: logger, Client: client}

	if err := app.build(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	rpcURLs, err := cfg.Chain.ChainRPCURLs()
	if err != nil {
		return err
	}
	a.Escrows, err = chain.NewResolver(rpcURLs, cfg.Chain.OperatorKey,
		chain.WithClientOptions(chain.WithLogger(a.Logger.GetLogger("pipeline.chain"))),
	)
	if err != nil {
		return fmt.Errorf("bootstrap - chain.NewResolver: %w", err)
	}

	s3Ctx, cancel := context.WithTimeout(ctx, cfg.S3.CfgLoadTimeout)
	defer cancel()
	objects, err := storage.New(s3Ctx, storage.Config{
		Endpoint:     cfg.S3.Endpoint,
		Region:       cfg.S3.Region,
		Bucket:       cfg.S3.Bucket,
		AccessKey:    cfg.S3.AccessKey,
		SecretKey:    cfg.S3.SecretKey,
		UsePathStyle: cfg.S3.UsePathStyle,
		PublicURL:    cfg.S3.PublicURL,
	}, storage.WithLogger(a.Logger.GetLogger("pipeline.storage")))
	if err != nil {
		return fmt.Errorf("bootstrap - storage.New: %w", err)
	}

	directory, err := NewOperatorDirectory(cfg.Operators)
	if err != nil {
		return fmt.Errorf("bootstrap - NewOperatorDirectory: %w", err)
	}

	signer, err := webhooks.NewEthSigner(cfg.Chain.OperatorKey)
	if err != nil {
		return fmt.Errorf("bootstrap - webhooks.NewEthSigner: %w", err)
	}

	runtimeCfg := pipeline.Config{}
	runtimeCfg.Scheduler.Disabled = !cfg.Pipeline.SchedulerEnabled
	opts := []pipeline.Option{}
	if path := strings.TrimSpace(cfg.Pipeline.ConfigFile); path != "" {
		opts = append(opts, pipeline.WithConfigProvider(core.NewCfgxConfigProvider(core.YAMLConfigLoader{Path: path})))
	}
	throttleCacheCfg := repositorycache.DefaultConfig()
	if cfg.Pipeline.ThrottleCacheTTL > 0 {
		throttleCacheCfg.TTL = cfg.Pipeline.ThrottleCacheTTL
	}
	throttleCache, err := repositorycache.NewCacheService(throttleCacheCfg)
	if err != nil {
		return fmt.Errorf("bootstrap - throttle cache: %w", err)
	}

	a.Runtime, err = pipeline.Setup(runtimeCfg, pipeline.Dependencies{
		Store:         a.Client,
		Escrows:       a.Escrows,
		Storage:       objects,
		Operators:     directory,
		Signer:        signer,
		Logger:        a.Logger,
		ThrottleCache: throttleCache,
	}, opts...)
	if err != nil {
		return fmt.Errorf("bootstrap - pipeline.Setup: %w", err)
	}

	a.Bus, err = gocommand.NewBus(gocommand.NewRegistryAdapter(command.NewRegistry()), a.Runtime.Facade.BusConfig())
	if err != nil {
		return fmt.Errorf("bootstrap - gocommand.NewBus: %w", err)
	}

	if cfg.Pipeline.JobQueue {
		if a.Jobs, err = a.openJobs(ctx); err != nil {
			return fmt.Errorf("bootstrap - openJobs: %w", err)
		}
	}
	return nil
}

func (a *App) openJobs(ctx context.Context) (*Jobs, error) {
	_, dialectName, _, err := resolveDialect(a.Config.DB.Driver)
	if err != nil {
		return nil, err
	}
	jobs, err := gojob.OpenSQLQueue(ctx, a.Client.DB().DB, dialectName)
	if err != nil {
		return nil, err
	}
	logger := a.Logger.GetLogger("pipeline.gojob")
	worker, err := gojob.NewSweepWorker(jobs, a.Runtime.Pipeline.Sweeps,
		gojob.WithRetryPolicy(gojob.RetryPolicy{
			MaxAttempts:     a.Config.Pipeline.JobMaxAttempts,
			BaseDelay:       a.Config.Pipeline.JobRetryDelay,
			MaxDelay:        time.Minute,
			DeadLetterOnMax: true,
		}),
		gojob.WithHook(gojob.NewLoggingHook(logger)),
		gojob.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return &Jobs{Enqueuer: gojob.NewSweepEnqueuer(jobs), Worker: worker}, nil
}

// Close releases the bus subscriptions and the database handle.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.Client != nil {
		return a.Client.Close()
	}
	return nil
}

// OpenPersistence connects to the configured database and applies the
// pipeline migrations when DB_MIGRATE is set.
func OpenPersistence(ctx context.Context, cfg DB) (*persistence.Client, error) {
	driverName, dialectName, dialect, err := resolveDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driverName, cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if !cfg.Migrate {
		return client, nil
	}
	if _, err := pipelinemigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == dialectName {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, pipelinemigrations.WithValidationTargets(dialectName)); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func resolveDialect(driver string) (string, string, schema.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pq":
		return "postgres", pipelinemigrations.DialectPostgres, pgdialect.New(), nil
	case "sqlite", "sqlite3":
		return "sqlite3", pipelinemigrations.DialectSQLite, sqlitedialect.New(), nil
	default:
		return "", "", nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// NewOperatorDirectory loads the operator file and fronts it with a
// go-repository-cache TTL cache.
func NewOperatorDirectory(cfg Operators) (core.OperatorDirectory, error) {
	static, err := operators.LoadStaticDirectory(cfg.File)
	if err != nil {
		return nil, err
	}
	cacheCfg := repositorycache.DefaultConfig()
	if cfg.CacheTTL > 0 {
		cacheCfg.TTL = cfg.CacheTTL
	}
	cacheService, err := repositorycache.NewCacheService(cacheCfg)
	if err != nil {
		return nil, err
	}
	return operators.NewCachedDirectory(static, cacheService)
}
