package query

import (
	"strings"

	"github.com/goliatone/go-escrow-pipeline/core"
)

const (
	TypeListSweepLocks = "pipeline.query.sweep_locks.list"
	TypeListQueueItems = "pipeline.query.queue_items.list"
)

type QueueName string

const (
	QueueIncomingWebhooks  QueueName = "incoming-webhooks"
	QueueEscrowCompletions QueueName = "escrow-completions"
	QueueOutgoingWebhooks  QueueName = "outgoing-webhooks"
)

func QueueNames() []QueueName {
	return []QueueName{QueueIncomingWebhooks, QueueEscrowCompletions, QueueOutgoingWebhooks}
}

func ParseQueueName(raw string) (QueueName, bool) {
	candidate := QueueName(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range QueueNames() {
		if candidate == known {
			return known, true
		}
	}
	return "", false
}

type ListSweepLocksMessage struct{}

func (ListSweepLocksMessage) Type() string { return TypeListSweepLocks }

// ListQueueItemsMessage lists the newest rows of one queue in one status.
type ListQueueItemsMessage struct {
	Queue  string
	Status core.QueueStatus
	Limit  int
}

func (ListQueueItemsMessage) Type() string { return TypeListQueueItems }

func (m ListQueueItemsMessage) Validate() error {
	if _, ok := ParseQueueName(m.Queue); !ok {
		return queryValidationError("queue", "unknown queue")
	}
	switch m.Status {
	case core.StatusPending, core.StatusPaid, core.StatusCompleted, core.StatusFailed:
	default:
		return queryValidationError("status", "unknown status")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type QueueItemsPage struct {
	Queue QueueName
	Items []core.QueueItem
	Total int
}
