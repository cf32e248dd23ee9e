package core

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidChainID          = errors.New("core: invalid chain id")
	ErrInvalidEscrowAddress    = errors.New("core: invalid escrow address")
	ErrUnsupportedEventType    = errors.New("core: unsupported event type")
	ErrInvalidSweepJobType     = errors.New("core: invalid sweep job type")
	ErrSweepAlreadyCompleted   = errors.New("core: sweep already completed")
	ErrEscrowClientUnavailable = errors.New("core: escrow client unavailable for chain")
)

type QueueStatus string

const (
	StatusPending   QueueStatus = "pending"
	StatusPaid      QueueStatus = "paid"
	StatusCompleted QueueStatus = "completed"
	StatusFailed    QueueStatus = "failed"
)

// Terminal reports whether no further processing happens for the status.
func (s QueueStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type EventType string

const (
	EventTypeEscrowCompleted    EventType = "escrow_completed"
	EventTypeEscrowFailed       EventType = "escrow_failed"
	EventTypeTaskCreationFailed EventType = "task_creation_failed"
)

func (e EventType) Valid() bool {
	switch e {
	case EventTypeEscrowCompleted, EventTypeEscrowFailed, EventTypeTaskCreationFailed:
		return true
	default:
		return false
	}
}

type SweepJobType string

const (
	JobProcessPendingIncomingWebhooks SweepJobType = "process-pending-incoming-webhooks"
	JobProcessPendingEscrowCompletion SweepJobType = "process-pending-escrow-completion"
	JobProcessPaidEscrowCompletion    SweepJobType = "process-paid-escrow-completion"
	JobProcessPendingOutgoingWebhooks SweepJobType = "process-pending-outgoing-webhooks"
)

// SweepJobTypes lists the job types in pipeline order.
func SweepJobTypes() []SweepJobType {
	return []SweepJobType{
		JobProcessPendingIncomingWebhooks,
		JobProcessPendingEscrowCompletion,
		JobProcessPaidEscrowCompletion,
		JobProcessPendingOutgoingWebhooks,
	}
}

func ParseSweepJobType(raw string) (SweepJobType, error) {
	candidate := SweepJobType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range SweepJobTypes() {
		if candidate == known {
			return known, nil
		}
	}
	return "", ErrInvalidSweepJobType
}

// QueueItem carries the retry bookkeeping shared by every queue row.
type QueueItem struct {
	ID            string
	ChainID       int64
	EscrowAddress string
	Status        QueueStatus
	RetriesCount  int
	WaitUntil     time.Time
	FailureDetail string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (q *QueueItem) Queue() *QueueItem {
	return q
}

// Retryable is satisfied by every queue entity through the embedded QueueItem.
type Retryable interface {
	Queue() *QueueItem
}

func NewQueueItem(chainID int64, escrowAddress string, now time.Time) QueueItem {
	now = now.UTC()
	return QueueItem{
		ChainID:       chainID,
		EscrowAddress: NormalizeAddress(escrowAddress),
		Status:        StatusPending,
		WaitUntil:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

type EscrowCompletion struct {
	QueueItem
	FinalResultsURL  string
	FinalResultsHash string
}

func (e *EscrowCompletion) HasFinalResults() bool {
	return e != nil && strings.TrimSpace(e.FinalResultsURL) != ""
}

type IncomingWebhook struct {
	QueueItem
	EventType EventType
	EventData map[string]any
}

type OutgoingWebhook struct {
	QueueItem
	Hash    string
	URL     string
	Payload WebhookPayload
}

// WebhookPayload is the wire body exchanged between marketplace services.
type WebhookPayload struct {
	ChainID       int64          `json:"chain_id"`
	EscrowAddress string         `json:"escrow_address"`
	EventType     EventType      `json:"event_type"`
	EventData     map[string]any `json:"event_data,omitempty"`
}

func (p WebhookPayload) Validate() error {
	if p.ChainID <= 0 {
		return ErrInvalidChainID
	}
	if !common.IsHexAddress(strings.TrimSpace(p.EscrowAddress)) {
		return ErrInvalidEscrowAddress
	}
	if !p.EventType.Valid() {
		return ErrUnsupportedEventType
	}
	return nil
}

// Normalized returns a copy with a lower-cased address and trimmed event type.
func (p WebhookPayload) Normalized() WebhookPayload {
	out := p
	out.EscrowAddress = NormalizeAddress(p.EscrowAddress)
	out.EventType = EventType(strings.ToLower(strings.TrimSpace(string(p.EventType))))
	out.EventData = copyAnyMap(p.EventData)
	return out
}

type SweepLock struct {
	ID          string
	JobType     SweepJobType
	StartedAt   time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (l SweepLock) Running() bool {
	return l.CompletedAt == nil
}

// SweepToken identifies one started sweep so it can be completed exactly once.
type SweepToken struct {
	LockID    string
	JobType   SweepJobType
	StartedAt time.Time
}

func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
