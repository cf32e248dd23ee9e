package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	pipelinecommand "github.com/goliatone/go-escrow-pipeline/command"
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/query"
)

type stubClient struct {
	sweeps  []string
	outcome core.SweepOutcome
	err     error
	locks   []core.SweepLock
	queries []query.ListQueueItemsMessage
	page    query.QueueItemsPage
	release pipelinecommand.ReleaseSweepLockResult
	freed   []string
}

func (c *stubClient) RunSweep(_ context.Context, jobType string) (core.SweepOutcome, error) {
	c.sweeps = append(c.sweeps, jobType)
	return c.outcome, c.err
}

func (c *stubClient) ListSweepLocks(context.Context) ([]core.SweepLock, error) {
	return c.locks, c.err
}

func (c *stubClient) ReleaseSweepLock(_ context.Context, jobType string) (pipelinecommand.ReleaseSweepLockResult, error) {
	c.freed = append(c.freed, jobType)
	return c.release, c.err
}

func (c *stubClient) ListQueueItems(_ context.Context, msg query.ListQueueItemsMessage) (query.QueueItemsPage, error) {
	c.queries = append(c.queries, msg)
	return c.page, c.err
}

func execute(t *testing.T, client *stubClient, args ...string) (string, int, error) {
	t.Helper()
	color.NoColor = true
	released := 0
	open := func(context.Context) (Client, func() error, error) {
		return client, func() error { released++; return nil }, nil
	}
	var out bytes.Buffer
	cmd := NewRootCmd(open, &out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), released, err
}

func TestSweepCommandRunsJob(t *testing.T) {
	client := &stubClient{outcome: core.SweepOutcome{JobType: core.JobProcessPaidEscrowCompletion, Duration: 1500 * time.Millisecond}}
	out, released, err := execute(t, client, "sweep", string(core.JobProcessPaidEscrowCompletion))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(client.sweeps) != 1 || client.sweeps[0] != string(core.JobProcessPaidEscrowCompletion) {
		t.Fatalf("unexpected sweeps %v", client.sweeps)
	}
	if !strings.Contains(out, "DONE") || released != 1 {
		t.Fatalf("unexpected output %q released=%d", out, released)
	}
}

func TestSweepCommandReportsSkip(t *testing.T) {
	client := &stubClient{outcome: core.SweepOutcome{JobType: core.JobProcessPendingOutgoingWebhooks, Skipped: true}}
	out, _, err := execute(t, client, "sweep", string(core.JobProcessPendingOutgoingWebhooks))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "SKIPPED") {
		t.Fatalf("expected skip in output, got %q", out)
	}
}

func TestSweepCommandPropagatesErrors(t *testing.T) {
	client := &stubClient{err: errors.New("unknown job")}
	if _, _, err := execute(t, client, "sweep", "bogus"); err == nil || !strings.Contains(err.Error(), "unknown job") {
		t.Fatalf("expected sweep error, got %v", err)
	}
}

func TestLocksCommandListsState(t *testing.T) {
	done := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client := &stubClient{locks: []core.SweepLock{
		{JobType: core.JobProcessPendingEscrowCompletion, StartedAt: done},
		{JobType: core.JobProcessPaidEscrowCompletion, StartedAt: done, CompletedAt: &done},
	}}
	out, _, err := execute(t, client, "locks")
	if err != nil {
		t.Fatalf("locks: %v", err)
	}
	if !strings.Contains(out, "RUNNING") || !strings.Contains(out, "IDLE") {
		t.Fatalf("expected both lock states, got %q", out)
	}
	if !strings.Contains(out, "2026-01-02T03:04:05Z") {
		t.Fatalf("expected started timestamp, got %q", out)
	}
}

func TestLocksReleaseCommandClearsStuckLock(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client := &stubClient{release: pipelinecommand.ReleaseSweepLockResult{
		Released: true,
		Lock:     core.SweepLock{JobType: core.JobProcessPendingOutgoingWebhooks, StartedAt: started},
	}}
	out, released, err := execute(t, client, "locks", "release", string(core.JobProcessPendingOutgoingWebhooks))
	if err != nil {
		t.Fatalf("locks release: %v", err)
	}
	if len(client.freed) != 1 || client.freed[0] != string(core.JobProcessPendingOutgoingWebhooks) {
		t.Fatalf("unexpected release calls %v", client.freed)
	}
	if !strings.Contains(out, "RELEASED") || !strings.Contains(out, "2026-01-02T03:04:05Z") || released != 1 {
		t.Fatalf("unexpected output %q released=%d", out, released)
	}
}

func TestLocksReleaseCommandReportsIdleLock(t *testing.T) {
	client := &stubClient{}
	out, _, err := execute(t, client, "locks", "release", string(core.JobProcessPaidEscrowCompletion))
	if err != nil {
		t.Fatalf("locks release: %v", err)
	}
	if !strings.Contains(out, "UNCHANGED") {
		t.Fatalf("expected unchanged output, got %q", out)
	}
	if _, _, err := execute(t, client, "locks", "release"); err == nil {
		t.Fatalf("expected missing job type error")
	}
}

func TestQueueCommandDefaultsToFailedRows(t *testing.T) {
	client := &stubClient{page: query.QueueItemsPage{
		Queue: query.QueueOutgoingWebhooks,
		Total: 1,
		Items: []core.QueueItem{{
			ChainID:       80002,
			EscrowAddress: "0x52fe0bd9b6a5b8c5e5a2b4b2d7a3e0f6f8f3b5a2",
			Status:        core.StatusFailed,
			RetriesCount:  5,
			FailureDetail: "503 Service Unavailable",
		}},
	}}
	out, _, err := execute(t, client, "queue", "outgoing-webhooks")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(client.queries) != 1 || client.queries[0].Status != core.StatusFailed || client.queries[0].Limit != 50 {
		t.Fatalf("unexpected query %+v", client.queries)
	}
	if !strings.Contains(out, "retries=5") || !strings.Contains(out, "503 Service Unavailable") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestQueueCommandRejectsUnknownQueueBeforeOpening(t *testing.T) {
	client := &stubClient{}
	_, released, err := execute(t, client, "queue", "dead-letters")
	if err == nil {
		t.Fatalf("expected unknown queue error")
	}
	if released != 0 || len(client.queries) != 0 {
		t.Fatalf("expected no client use for invalid queue")
	}
}
