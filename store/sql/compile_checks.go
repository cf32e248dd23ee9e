package sqlstore

import (
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/ratelimit"
)

var (
	_ core.EscrowCompletionStore = (*EscrowCompletionStore)(nil)
	_ core.IncomingWebhookStore  = (*IncomingWebhookStore)(nil)
	_ core.OutgoingWebhookStore  = (*OutgoingWebhookStore)(nil)
	_ core.SweepLockStore        = (*SweepLockStore)(nil)

	_ ratelimit.StateStore = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore = (*CachedRateLimitStateStore)(nil)
)
