package query

import (
	"context"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-escrow-pipeline/core"
)

type stubLockReader struct {
	locks []core.SweepLock
}

func (s stubLockReader) List(context.Context) ([]core.SweepLock, error) {
	return s.locks, nil
}

type stubOutgoingLister struct {
	status core.QueueStatus
	limit  int
	items  []*core.OutgoingWebhook
}

func (s *stubOutgoingLister) ListByStatus(_ context.Context, status core.QueueStatus, limit int) ([]*core.OutgoingWebhook, int, error) {
	s.status = status
	s.limit = limit
	return s.items, len(s.items) + 10, nil
}

func TestListSweepLocksQuery_QueryDelegates(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	qry := NewListSweepLocksQuery(stubLockReader{locks: []core.SweepLock{
		{ID: "lock-1", JobType: core.JobProcessPendingEscrowCompletion, StartedAt: started},
	}})
	locks, err := qry.Query(context.Background(), ListSweepLocksMessage{})
	if err != nil {
		t.Fatalf("query sweep locks: %v", err)
	}
	if len(locks) != 1 || !locks[0].Running() {
		t.Fatalf("unexpected locks %#v", locks)
	}
}

func TestListQueueItemsQuery_ProjectsQueueItems(t *testing.T) {
	lister := &stubOutgoingLister{items: []*core.OutgoingWebhook{
		{QueueItem: core.QueueItem{ID: "out-1", Status: core.StatusFailed, RetriesCount: 5, FailureDetail: "503"}, URL: "https://a.example.com"},
	}}
	qry := NewListQueueItemsQuery(map[QueueName]QueueReader{
		QueueOutgoingWebhooks: NewQueueReader[*core.OutgoingWebhook](lister),
	})

	page, err := qry.Query(context.Background(), ListQueueItemsMessage{Queue: "Outgoing-Webhooks", Status: core.StatusFailed})
	if err != nil {
		t.Fatalf("query queue items: %v", err)
	}
	if lister.status != core.StatusFailed || lister.limit != defaultListLimit {
		t.Fatalf("expected default limit and status forwarded, got %s %d", lister.status, lister.limit)
	}
	if page.Queue != QueueOutgoingWebhooks || page.Total != 11 {
		t.Fatalf("unexpected page %#v", page)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "out-1" || page.Items[0].FailureDetail != "503" {
		t.Fatalf("unexpected items %#v", page.Items)
	}
}

func TestListQueueItemsQuery_ValidationReturnsRichError(t *testing.T) {
	qry := NewListQueueItemsQuery(map[QueueName]QueueReader{})
	for name, msg := range map[string]ListQueueItemsMessage{
		"queue":  {Queue: "dead-letters", Status: core.StatusFailed},
		"status": {Queue: string(QueueIncomingWebhooks), Status: "stuck"},
		"limit":  {Queue: string(QueueIncomingWebhooks), Status: core.StatusFailed, Limit: -1},
	} {
		_, err := qry.Query(context.Background(), msg)
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, err)
		}
		if rich.Category != goerrors.CategoryValidation || rich.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected error %#v", name, rich)
		}
	}
}

func TestListQueueItemsQuery_MissingReaderIsDependencyError(t *testing.T) {
	qry := NewListQueueItemsQuery(map[QueueName]QueueReader{})
	_, err := qry.Query(context.Background(), ListQueueItemsMessage{Queue: string(QueueEscrowCompletions), Status: core.StatusPaid})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
