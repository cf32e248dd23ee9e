package command

import (
	"context"
	"errors"
	"net/http"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/inbound"
)

type stubSweepTrigger struct {
	calls []core.SweepJobType
	out   core.SweepOutcome
	err   error
}

func (s *stubSweepTrigger) Run(_ context.Context, jobType core.SweepJobType) (core.SweepOutcome, error) {
	s.calls = append(s.calls, jobType)
	out := s.out
	out.JobType = jobType
	return out, s.err
}

type stubAcceptor struct {
	body      []byte
	signature string
	result    inbound.AcceptResult
	err       error
}

func (s *stubAcceptor) AcceptSigned(_ context.Context, body []byte, signature string) (inbound.AcceptResult, error) {
	s.body = body
	s.signature = signature
	return s.result, s.err
}

func TestRunSweepCommand_ExecuteDelegatesAndStoresOutcome(t *testing.T) {
	sweeps := &stubSweepTrigger{out: core.SweepOutcome{Skipped: true}}
	cmd := NewRunSweepCommand(sweeps)
	collector := gocmd.NewResult[core.SweepOutcome]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, RunSweepMessage{JobType: " Process-Paid-Escrow-Completion "}); err != nil {
		t.Fatalf("execute run sweep: %v", err)
	}
	if len(sweeps.calls) != 1 || sweeps.calls[0] != core.JobProcessPaidEscrowCompletion {
		t.Fatalf("expected normalized job type, got %v", sweeps.calls)
	}
	outcome, ok := collector.Load()
	if !ok {
		t.Fatalf("expected outcome to be stored")
	}
	if !outcome.Skipped || outcome.JobType != core.JobProcessPaidEscrowCompletion {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
}

func TestRunSweepCommand_RejectsUnknownJobType(t *testing.T) {
	sweeps := &stubSweepTrigger{}
	err := NewRunSweepCommand(sweeps).Execute(context.Background(), RunSweepMessage{JobType: "process-everything"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.Code != http.StatusBadRequest {
		t.Fatalf("unexpected validation error %#v", rich)
	}
	if rich.TextCode != core.PipelineErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.PipelineErrorBadInput, rich.TextCode)
	}
	if len(sweeps.calls) != 0 {
		t.Fatalf("expected no sweep for invalid job type")
	}
}

func TestRunSweepCommand_PropagatesSweepError(t *testing.T) {
	sweepErr := errors.New("store offline")
	err := NewRunSweepCommand(&stubSweepTrigger{err: sweepErr}).Execute(context.Background(), RunSweepMessage{
		JobType: string(core.JobProcessPendingIncomingWebhooks),
	})
	if !errors.Is(err, sweepErr) {
		t.Fatalf("expected sweep error, got %v", err)
	}
}

func TestAcceptWebhookCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	acceptor := &stubAcceptor{result: inbound.AcceptResult{Accepted: true, Deduped: true, StatusCode: http.StatusAccepted}}
	collector := gocmd.NewResult[inbound.AcceptResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := NewAcceptWebhookCommand(acceptor).Execute(ctx, AcceptWebhookMessage{
		Body:      []byte(`{"chain_id":1}`),
		Signature: "0xsig",
	})
	if err != nil {
		t.Fatalf("execute accept webhook: %v", err)
	}
	if string(acceptor.body) != `{"chain_id":1}` || acceptor.signature != "0xsig" {
		t.Fatalf("expected body and signature forwarded")
	}
	result, ok := collector.Load()
	if !ok || !result.Deduped || result.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected stored result %#v", result)
	}
}

func TestAcceptWebhookCommand_EmptyBodyIsValidationError(t *testing.T) {
	acceptor := &stubAcceptor{}
	err := NewAcceptWebhookCommand(acceptor).Execute(context.Background(), AcceptWebhookMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if acceptor.body != nil {
		t.Fatalf("expected intake not called")
	}
}

func TestCommands_NilDependenciesReturnRichError(t *testing.T) {
	var sweep *RunSweepCommand
	var accept *AcceptWebhookCommand
	for name, err := range map[string]error{
		"sweep":  sweep.Execute(context.Background(), RunSweepMessage{}),
		"accept": accept.Execute(context.Background(), AcceptWebhookMessage{}),
	} {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, err)
		}
		if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.PipelineErrorInternal {
			t.Fatalf("%s: unexpected dependency error %#v", name, rich)
		}
	}
}

type stubReleaser struct {
	calls    []core.SweepJobType
	released bool
	err      error
}

func (s *stubReleaser) Release(_ context.Context, jobType core.SweepJobType) (core.SweepLock, bool, error) {
	s.calls = append(s.calls, jobType)
	return core.SweepLock{ID: "lock-1", JobType: jobType}, s.released, s.err
}

func TestReleaseSweepLockCommand_StoresResult(t *testing.T) {
	locks := &stubReleaser{released: true}
	collector := gocmd.NewResult[ReleaseSweepLockResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := NewReleaseSweepLockCommand(locks).Execute(ctx, ReleaseSweepLockMessage{JobType: "process-pending-outgoing-webhooks"}); err != nil {
		t.Fatalf("execute release: %v", err)
	}
	if len(locks.calls) != 1 || locks.calls[0] != core.JobProcessPendingOutgoingWebhooks {
		t.Fatalf("unexpected release calls %v", locks.calls)
	}
	result, ok := collector.Load()
	if !ok || !result.Released || result.Lock.ID != "lock-1" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestReleaseSweepLockCommand_RejectsUnknownJobType(t *testing.T) {
	locks := &stubReleaser{}
	err := NewReleaseSweepLockCommand(locks).Execute(context.Background(), ReleaseSweepLockMessage{JobType: "everything"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation envelope, got %v", err)
	}
	if len(locks.calls) != 0 {
		t.Fatalf("expected no release for invalid job type")
	}
}
