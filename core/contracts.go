package core

import (
	"context"
	"math/big"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type CreateResult string

const (
	CreateResultCreated   CreateResult = "created"
	CreateResultDuplicate CreateResult = "duplicate"
)

type EligibilityQuery struct {
	Status     QueueStatus
	MaxRetries int
	Now        time.Time
	Limit      int
}

// QueueStore persists one retryable queue. CreateUnique reports a unique key
// collision as CreateResultDuplicate instead of an error.
type QueueStore[T Retryable] interface {
	FindEligible(ctx context.Context, query EligibilityQuery) ([]T, error)
	CreateUnique(ctx context.Context, item T) (CreateResult, error)
	Update(ctx context.Context, item T) error
}

type EscrowCompletionStore = QueueStore[*EscrowCompletion]

type IncomingWebhookStore = QueueStore[*IncomingWebhook]

type OutgoingWebhookStore = QueueStore[*OutgoingWebhook]

type SweepLockStore interface {
	GetByJobType(ctx context.Context, jobType SweepJobType) (SweepLock, bool, error)
	Create(ctx context.Context, lock SweepLock) (SweepLock, error)
	Update(ctx context.Context, lock SweepLock) error
	GetByID(ctx context.Context, id string) (SweepLock, error)
	List(ctx context.Context) ([]SweepLock, error)
}

type EscrowStatus string

const (
	EscrowStatusLaunched  EscrowStatus = "launched"
	EscrowStatusPending   EscrowStatus = "pending"
	EscrowStatusPartial   EscrowStatus = "partial"
	EscrowStatusPaid      EscrowStatus = "paid"
	EscrowStatusComplete  EscrowStatus = "complete"
	EscrowStatusCancelled EscrowStatus = "cancelled"
)

// Finalized reports whether the escrow can no longer be completed.
func (s EscrowStatus) Finalized() bool {
	return s == EscrowStatusComplete || s == EscrowStatusCancelled
}

type TxOptions struct {
	GasPriceMultiplier float64
	GasLimit           uint64
}

type Payout struct {
	Recipient string
	Amount    *big.Int
}

// EscrowClient is the chain-facing view of one escrow contract family.
type EscrowClient interface {
	GetStatus(ctx context.Context, escrowAddress string) (EscrowStatus, error)
	Complete(ctx context.Context, escrowAddress string, opts TxOptions) error
	BulkPayOut(ctx context.Context, escrowAddress string, payouts []Payout, resultsURL, resultsHash string, opts TxOptions) error
	GetJobLauncherAddress(ctx context.Context, escrowAddress string) (string, error)
	GetExchangeOracleAddress(ctx context.Context, escrowAddress string) (string, error)
	GetRecordingOracleAddress(ctx context.Context, escrowAddress string) (string, error)
	GetManifestURL(ctx context.Context, escrowAddress string) (string, error)
	GetIntermediateResultsURL(ctx context.Context, escrowAddress string) (string, error)
}

type EscrowClientResolver interface {
	ForChain(ctx context.Context, chainID int64) (EscrowClient, error)
}

type OperatorRole string

const (
	OperatorRoleJobLauncher     OperatorRole = "job_launcher"
	OperatorRoleExchangeOracle  OperatorRole = "exchange_oracle"
	OperatorRoleRecordingOracle OperatorRole = "recording_oracle"
)

type Operator struct {
	ChainID    int64
	Address    string
	Role       OperatorRole
	WebhookURL string
}

type OperatorDirectory interface {
	GetOperator(ctx context.Context, chainID int64, address string) (Operator, error)
}

type FinalResults struct {
	URL  string
	Hash string
}

type ResultProcessor interface {
	ComputeResults(ctx context.Context, chainID int64, escrowAddress string) (FinalResults, error)
}

// PayoutExecutor must be safe to call again for an escrow it already paid.
type PayoutExecutor interface {
	ExecutePayout(ctx context.Context, chainID int64, escrowAddress string, results FinalResults) error
}

type ReputationService interface {
	AssessReputationScores(ctx context.Context, chainID int64, escrowAddress string) error
}

type StorageService interface {
	Download(ctx context.Context, url string) ([]byte, error)
	Upload(ctx context.Context, key string, content []byte, contentType string) (string, error)
}

type WebhookSender interface {
	Send(ctx context.Context, url string, payload WebhookPayload) error
}

type EscrowCompletionCreator interface {
	CreateEscrowCompletion(ctx context.Context, chainID int64, escrowAddress string) (CreateResult, error)
}

type SweepFunc func(ctx context.Context) error

// SweepTrigger runs one guarded sweep of the named job type.
type SweepTrigger interface {
	Run(ctx context.Context, jobType SweepJobType) (SweepOutcome, error)
}
