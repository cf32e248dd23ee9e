package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ EscrowCompletionCreator = (*EscrowCompletionService)(nil)
	_ SweepTrigger            = (*SweepRunner)(nil)
	_ Retryable               = (*EscrowCompletion)(nil)
	_ Retryable               = (*IncomingWebhook)(nil)
	_ Retryable               = (*OutgoingWebhook)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
