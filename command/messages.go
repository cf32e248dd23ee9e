package command

import (
	"github.com/goliatone/go-escrow-pipeline/core"
)

const (
	TypeRunSweep      = "pipeline.command.sweep.run"
	TypeAcceptWebhook = "pipeline.command.webhook.accept"

	TypeReleaseSweepLock = "pipeline.command.sweep_lock.release"
)

// RunSweepMessage runs one guarded sweep of JobType.
type RunSweepMessage struct {
	JobType string
}

func (RunSweepMessage) Type() string { return TypeRunSweep }

func (m RunSweepMessage) Validate() error {
	if _, err := core.ParseSweepJobType(m.JobType); err != nil {
		return commandValidationError("job_type", "unknown sweep job type")
	}
	return nil
}

// AcceptWebhookMessage carries a raw webhook body with its signature header.
type AcceptWebhookMessage struct {
	Body      []byte
	Signature string
}

func (AcceptWebhookMessage) Type() string { return TypeAcceptWebhook }

func (m AcceptWebhookMessage) Validate() error {
	if len(m.Body) == 0 {
		return commandValidationError("body", "webhook body is required")
	}
	return nil
}

// ReleaseSweepLockMessage clears a lock left running by a crashed sweep.
type ReleaseSweepLockMessage struct {
	JobType string
}

func (ReleaseSweepLockMessage) Type() string { return TypeReleaseSweepLock }

func (m ReleaseSweepLockMessage) Validate() error {
	if _, err := core.ParseSweepJobType(m.JobType); err != nil {
		return commandValidationError("job_type", "unknown sweep job type")
	}
	return nil
}

type ReleaseSweepLockResult struct {
	Lock     core.SweepLock
	Released bool
}
