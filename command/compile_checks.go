package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-escrow-pipeline/core"
)

var (
	_ gocmd.Commander[RunSweepMessage]      = (*RunSweepCommand)(nil)
	_ gocmd.Commander[AcceptWebhookMessage] = (*AcceptWebhookCommand)(nil)

	_ gocmd.Commander[ReleaseSweepLockMessage] = (*ReleaseSweepLockCommand)(nil)
	_ SweepLockReleaser                        = (*core.SweepLockService)(nil)
)
