package sqlstore

import (
	"time"

	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/uptrace/bun"
)

type escrowCompletionRecord struct {
	bun.BaseModel `bun:"table:escrow_completions,alias:ec"`

	ID               string    `bun:"id,pk"`
	ChainID          int64     `bun:"chain_id,notnull"`
	EscrowAddress    string    `bun:"escrow_address,notnull"`
	Status           string    `bun:"status,notnull"`
	RetriesCount     int       `bun:"retries_count,notnull"`
	WaitUntil        time.Time `bun:"wait_until,notnull"`
	FailureDetail    string    `bun:"failure_detail,notnull"`
	FinalResultsURL  string    `bun:"final_results_url,notnull"`
	FinalResultsHash string    `bun:"final_results_hash,notnull"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type incomingWebhookRecord struct {
	bun.BaseModel `bun:"table:incoming_webhooks,alias:iw"`

	ID            string         `bun:"id,pk"`
	ChainID       int64          `bun:"chain_id,notnull"`
	EscrowAddress string         `bun:"escrow_address,notnull"`
	EventType     string         `bun:"event_type,notnull"`
	EventData     map[string]any `bun:"event_data,type:jsonb,notnull"`
	Status        string         `bun:"status,notnull"`
	RetriesCount  int            `bun:"retries_count,notnull"`
	WaitUntil     time.Time      `bun:"wait_until,notnull"`
	FailureDetail string         `bun:"failure_detail,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type outgoingWebhookRecord struct {
	bun.BaseModel `bun:"table:outgoing_webhooks,alias:ow"`

	ID            string              `bun:"id,pk"`
	ChainID       int64               `bun:"chain_id,notnull"`
	EscrowAddress string              `bun:"escrow_address,notnull"`
	Hash          string              `bun:"hash,notnull"`
	URL           string              `bun:"url,notnull"`
	Payload       core.WebhookPayload `bun:"payload,type:jsonb,notnull"`
	Status        string              `bun:"status,notnull"`
	RetriesCount  int                 `bun:"retries_count,notnull"`
	WaitUntil     time.Time           `bun:"wait_until,notnull"`
	FailureDetail string              `bun:"failure_detail,notnull"`
	CreatedAt     time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type sweepLockRecord struct {
	bun.BaseModel `bun:"table:sweep_locks,alias:sl"`

	ID          string     `bun:"id,pk"`
	JobType     string     `bun:"job_type,notnull"`
	StartedAt   time.Time  `bun:"started_at,notnull"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type receiverRateLimitRecord struct {
	bun.BaseModel `bun:"table:receiver_rate_limits,alias:rl"`

	ID                string     `bun:"id,pk"`
	ReceiverKey       string     `bun:"receiver_key,notnull"`
	Limit             int        `bun:"rate_limit,notnull"`
	Remaining         int        `bun:"remaining,notnull"`
	ResetAt           *time.Time `bun:"reset_at,nullzero"`
	RetryAfterSeconds *int       `bun:"retry_after_seconds,nullzero"`
	ThrottledUntil    *time.Time `bun:"throttled_until,nullzero"`
	LastStatus        int        `bun:"last_status,notnull"`
	Attempts          int        `bun:"attempts,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
