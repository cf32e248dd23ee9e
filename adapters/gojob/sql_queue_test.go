package gojob

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-escrow-pipeline/core"
	_ "github.com/mattn/go-sqlite3"
)

func openQueueDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "sweeps.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLQueueCarriesSweepsToWorker(t *testing.T) {
	ctx := context.Background()
	db := openQueueDB(t)
	jobs, err := OpenSQLQueue(ctx, db, "sqlite")
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}

	if _, err := NewSweepEnqueuer(jobs).Run(ctx, core.JobProcessPendingOutgoingWebhooks); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	sweeps := &stubSweeps{}
	w, err := NewSweepWorker(jobs, sweeps)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sweeps.calls) != 1 || sweeps.calls[0] != core.JobProcessPendingOutgoingWebhooks {
		t.Fatalf("expected the queued sweep to run, got %v", sweeps.calls)
	}

	var pending int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+SweepQueueTable).Scan(&pending); err != nil {
		t.Fatalf("count: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected acked trigger removed, got %d rows", pending)
	}
	if err := w.ProcessNext(ctx); err != nil {
		t.Fatalf("expected empty queue to be quiet, got %v", err)
	}
	if len(sweeps.calls) != 1 {
		t.Fatalf("expected no further sweeps, got %v", sweeps.calls)
	}
}

func TestOpenSQLQueueRejectsUnknownDialect(t *testing.T) {
	if _, err := OpenSQLQueue(context.Background(), openQueueDB(t), "oracle"); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
	if _, err := OpenSQLQueue(context.Background(), nil, "sqlite"); err == nil {
		t.Fatalf("expected missing database error")
	}
}
