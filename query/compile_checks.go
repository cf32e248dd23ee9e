package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-escrow-pipeline/core"
)

var (
	_ gocmd.Querier[ListSweepLocksMessage, []core.SweepLock] = (*ListSweepLocksQuery)(nil)
	_ gocmd.Querier[ListQueueItemsMessage, QueueItemsPage]   = (*ListQueueItemsQuery)(nil)
)
