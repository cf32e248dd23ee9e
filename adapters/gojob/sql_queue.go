package gojob

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sqlqueue "github.com/goliatone/go-job/queue/adapters/postgres"
)

const (
	SweepQueueTable       = "pipeline_sweep_jobs"
	SweepQueueDLQTable    = "pipeline_sweep_jobs_dlq"
	SweepQueueStatusTable = "pipeline_sweep_job_status"
)

// OpenSQLQueue creates the go-job queue tables next to the pipeline tables
// and returns an adapter that is both enqueuer and dequeuer.
func OpenSQLQueue(ctx context.Context, db *sql.DB, dialect string, opts ...sqlqueue.Option) (*sqlqueue.Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("gojob: database is required")
	}
	storageOpts := []sqlqueue.Option{
		sqlqueue.WithTableName(SweepQueueTable),
		sqlqueue.WithDLQTableName(SweepQueueDLQTable),
		sqlqueue.WithStatusTableName(SweepQueueStatusTable),
	}
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql", "pq":
		storageOpts = append(storageOpts, sqlqueue.WithDialect(sqlqueue.DialectPostgres))
	case "sqlite", "sqlite3":
		storageOpts = append(storageOpts, sqlqueue.WithDialect(sqlqueue.DialectSQLite))
	default:
		return nil, fmt.Errorf("gojob: unsupported queue dialect %q", dialect)
	}
	storage := sqlqueue.NewStorage(db, append(storageOpts, opts...)...)
	if err := storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("gojob: migrate sweep queue: %w", err)
	}
	return sqlqueue.NewAdapter(storage), nil
}
