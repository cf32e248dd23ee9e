package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goliatone/go-escrow-pipeline/bootstrap"
	"github.com/joho/godotenv"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	rootCmd := NewRootCmd(openBus, os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openBus boots the pipeline against the configured database and chains.
// The scheduler is never started from the CLI.
func openBus(ctx context.Context) (Client, func() error, error) {
	cfg, err := bootstrap.NewConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg.Pipeline.SchedulerEnabled = false
	app, err := bootstrap.New(ctx, cfg, bootstrap.NewLogger(cfg.Log.Level, os.Stderr))
	if err != nil {
		return nil, nil, err
	}
	return app.Bus, app.Close, nil
}
