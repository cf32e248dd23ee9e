package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-escrow-pipeline/adapters/gocommand"
	"github.com/goliatone/go-escrow-pipeline/bootstrap"
	pipelinecommand "github.com/goliatone/go-escrow-pipeline/command"
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/httpapi"
	"github.com/goliatone/go-escrow-pipeline/scheduler"
)

func Run(cfg *bootstrap.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.NewLogger(cfg.Log.Level, os.Stdout)

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("app - Run - bootstrap.New: %w", err)
	}
	defer app.Close()
	pipelineCfg := app.Runtime.Pipeline.Config()

	// Scheduler, enqueueing through go-job when the sweep queue is enabled
	var trigger core.SweepTrigger = app.Runtime.Pipeline.Sweeps
	workerDone := make(chan struct{})
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if app.Jobs != nil {
		trigger = app.Jobs.Enqueuer
	}
	if app.Jobs != nil && cfg.Pipeline.JobWorker {
		go func() {
			defer close(workerDone)
			_ = app.Jobs.Worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	sched, err := scheduler.New(trigger, pipelineCfg.Scheduler,
		scheduler.WithLogger(logger.GetLogger("pipeline.scheduler")),
	)
	if err != nil {
		return fmt.Errorf("app - Run - scheduler.New: %w", err)
	}

	// HTTP Server
	server := httpapi.NewServer(
		httpapi.WithAddress(cfg.HTTP.Address),
		httpapi.WithReadTimeout(cfg.HTTP.ReadTimeout),
		httpapi.WithWriteTimeout(cfg.HTTP.WriteTimeout),
		httpapi.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		httpapi.WithLogger(logger.GetLogger("pipeline.http")),
	)
	httpapi.Register(server.App, httpapi.Handlers{
		Webhooks:        dispatchCommand[pipelinecommand.AcceptWebhookMessage](),
		Sweeps:          dispatchCommand[pipelinecommand.RunSweepMessage](),
		CronSecret:      cfg.Cron.Secret,
		SignatureHeader: pipelineCfg.Webhooks.SignatureHeader,
	})

	// Start Components
	sched.Start()
	server.Start()
	logger.Info("escrow pipeline started",
		"address", cfg.HTTP.Address,
		"chains", app.Escrows.ChainIDs(),
		"scheduler_disabled", sched.Disabled(),
		"job_queue", app.Jobs != nil,
	)

	// Waiting Signal
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-server.Notify():
		runErr = fmt.Errorf("app - Run - server.Notify: %w", err)
	}

	// Shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("app - Run - server.Shutdown: %w", err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("app - Run - scheduler.Stop: %w", err))
	}
	stopWorker()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		runErr = errors.Join(runErr, fmt.Errorf("app - Run - sweep worker: %w", shutdownCtx.Err()))
	}
	return runErr
}

// dispatchCommand routes an HTTP command through the go-command dispatcher so
// the HTTP surface and the CLI share one set of subscriptions.
func dispatchCommand[T any]() command.Commander[T] {
	return command.CommandFunc[T](func(ctx context.Context, msg T) error {
		return gocommand.Dispatch(ctx, msg)
	})
}
