package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/inbound"
)

type WebhookAcceptor interface {
	AcceptSigned(ctx context.Context, body []byte, signature string) (inbound.AcceptResult, error)
}

type RunSweepCommand struct {
	sweeps core.SweepTrigger
}

func NewRunSweepCommand(sweeps core.SweepTrigger) *RunSweepCommand {
	return &RunSweepCommand{sweeps: sweeps}
}

// Execute stores the core.SweepOutcome in the result collector when one is
// attached to ctx.
func (c *RunSweepCommand) Execute(ctx context.Context, msg RunSweepMessage) error {
	if c == nil || c.sweeps == nil {
		return commandDependencyError("command: sweep runner is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	jobType, _ := core.ParseSweepJobType(msg.JobType)
	out, err := c.sweeps.Run(ctx, jobType)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AcceptWebhookCommand struct {
	intake WebhookAcceptor
}

func NewAcceptWebhookCommand(intake WebhookAcceptor) *AcceptWebhookCommand {
	return &AcceptWebhookCommand{intake: intake}
}

func (c *AcceptWebhookCommand) Execute(ctx context.Context, msg AcceptWebhookMessage) error {
	if c == nil || c.intake == nil {
		return commandDependencyError("command: webhook intake is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.intake.AcceptSigned(ctx, msg.Body, msg.Signature)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SweepLockReleaser interface {
	Release(ctx context.Context, jobType core.SweepJobType) (core.SweepLock, bool, error)
}

type ReleaseSweepLockCommand struct {
	locks SweepLockReleaser
}

func NewReleaseSweepLockCommand(locks SweepLockReleaser) *ReleaseSweepLockCommand {
	return &ReleaseSweepLockCommand{locks: locks}
}

func (c *ReleaseSweepLockCommand) Execute(ctx context.Context, msg ReleaseSweepLockMessage) error {
	if c == nil || c.locks == nil {
		return commandDependencyError("command: sweep lock service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	jobType, _ := core.ParseSweepJobType(msg.JobType)
	lock, released, err := c.locks.Release(ctx, jobType)
	if err != nil {
		return err
	}
	storeResult(ctx, ReleaseSweepLockResult{Lock: lock, Released: released})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
