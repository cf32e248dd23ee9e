package query

import (
	"context"

	"github.com/goliatone/go-escrow-pipeline/core"
)

const defaultListLimit = 50

type SweepLockReader interface {
	List(ctx context.Context) ([]core.SweepLock, error)
}

// StatusLister is implemented by every SQL queue store.
type StatusLister[T core.Retryable] interface {
	ListByStatus(ctx context.Context, status core.QueueStatus, limit int) ([]T, int, error)
}

// QueueReader is the queue agnostic projection of a StatusLister.
type QueueReader interface {
	ListByStatus(ctx context.Context, status core.QueueStatus, limit int) ([]core.QueueItem, int, error)
}

type queueReader[T core.Retryable] struct {
	lister StatusLister[T]
}

func NewQueueReader[T core.Retryable](lister StatusLister[T]) QueueReader {
	return queueReader[T]{lister: lister}
}

func (r queueReader[T]) ListByStatus(ctx context.Context, status core.QueueStatus, limit int) ([]core.QueueItem, int, error) {
	items, total, err := r.lister.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]core.QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, *item.Queue())
	}
	return out, total, nil
}

type ListSweepLocksQuery struct {
	reader SweepLockReader
}

func NewListSweepLocksQuery(reader SweepLockReader) *ListSweepLocksQuery {
	return &ListSweepLocksQuery{reader: reader}
}

func (q *ListSweepLocksQuery) Query(ctx context.Context, _ ListSweepLocksMessage) ([]core.SweepLock, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: sweep lock reader is required")
	}
	return q.reader.List(ctx)
}

type ListQueueItemsQuery struct {
	readers map[QueueName]QueueReader
}

func NewListQueueItemsQuery(readers map[QueueName]QueueReader) *ListQueueItemsQuery {
	return &ListQueueItemsQuery{readers: readers}
}

func (q *ListQueueItemsQuery) Query(ctx context.Context, msg ListQueueItemsMessage) (QueueItemsPage, error) {
	if q == nil {
		return QueueItemsPage{}, queryDependencyError("query: queue readers are required")
	}
	if err := msg.Validate(); err != nil {
		return QueueItemsPage{}, err
	}
	name, _ := ParseQueueName(msg.Queue)
	reader := q.readers[name]
	if reader == nil {
		return QueueItemsPage{}, queryDependencyError("query: no reader registered for queue " + string(name))
	}
	limit := msg.Limit
	if limit == 0 {
		limit = defaultListLimit
	}
	items, total, err := reader.ListByStatus(ctx, msg.Status, limit)
	if err != nil {
		return QueueItemsPage{}, err
	}
	return QueueItemsPage{Queue: name, Items: items, Total: total}, nil
}
