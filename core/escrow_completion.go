package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type EscrowCompletionDependencies struct {
	Store      EscrowCompletionStore
	Webhooks   OutgoingWebhookStore
	Escrows    EscrowClientResolver
	Operators  OperatorDirectory
	Results    ResultProcessor
	Payouts    PayoutExecutor
	Reputation ReputationService
	Policy     RetryPolicy
	BatchSize  int
	TxOptions  TxOptions
	Logger     Logger
	Metrics    MetricsRecorder
	Now        func() time.Time
}

// EscrowCompletionService drives pending -> paid -> completed for finished
// escrows. Each stage is safe to rerun after a partial failure.
type EscrowCompletionService struct {
	store      EscrowCompletionStore
	webhooks   OutgoingWebhookStore
	escrows    EscrowClientResolver
	operators  OperatorDirectory
	results    ResultProcessor
	payouts    PayoutExecutor
	reputation ReputationService
	txOptions  TxOptions
	processor  *QueueProcessor[*EscrowCompletion]
	logger     Logger
	now        func() time.Time
}

func NewEscrowCompletionService(deps EscrowCompletionDependencies) (*EscrowCompletionService, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("core: escrow completion store is required")
	case deps.Webhooks == nil:
		return nil, fmt.Errorf("core: outgoing webhook store is required")
	case deps.Escrows == nil:
		return nil, fmt.Errorf("core: escrow client resolver is required")
	case deps.Operators == nil:
		return nil, fmt.Errorf("core: operator directory is required")
	case deps.Results == nil:
		return nil, fmt.Errorf("core: result processor is required")
	case deps.Payouts == nil:
		return nil, fmt.Errorf("core: payout executor is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Reputation == nil && deps.Logger != nil {
		deps.Logger.Warn("reputation service not configured, paid escrows complete without reputation assessment")
	}
	processor, err := NewQueueProcessor[*EscrowCompletion](deps.Store, QueueProcessorConfig{
		Name:      "escrow_completions",
		Policy:    deps.Policy,
		BatchSize: deps.BatchSize,
	}, deps.Logger, deps.Metrics, deps.Now)
	if err != nil {
		return nil, err
	}
	return &EscrowCompletionService{
		store:      deps.Store,
		webhooks:   deps.Webhooks,
		escrows:    deps.Escrows,
		operators:  deps.Operators,
		results:    deps.Results,
		payouts:    deps.Payouts,
		reputation: deps.Reputation,
		txOptions:  deps.TxOptions,
		processor:  processor,
		logger:     deps.Logger,
		now:        deps.Now,
	}, nil
}

func (s *EscrowCompletionService) CreateEscrowCompletion(ctx context.Context, chainID int64, escrowAddress string) (CreateResult, error) {
	if s == nil || s.store == nil {
		return "", fmt.Errorf("core: escrow completion service is not configured")
	}
	if chainID <= 0 {
		return "", ErrInvalidChainID
	}
	if strings.TrimSpace(escrowAddress) == "" {
		return "", ErrInvalidEscrowAddress
	}
	item := &EscrowCompletion{QueueItem: NewQueueItem(chainID, escrowAddress, s.now())}
	result, err := s.store.CreateUnique(ctx, item)
	if err != nil {
		return "", err
	}
	if result == CreateResultDuplicate {
		logWithLevel(ctx, s.logger, "debug", "escrow completion already tracked", itemFields(&item.QueueItem))
	}
	return result, nil
}

func (s *EscrowCompletionService) ProcessPending(ctx context.Context) (SweepStats, error) {
	if s == nil || s.processor == nil {
		return SweepStats{}, fmt.Errorf("core: escrow completion service is not configured")
	}
	return s.processor.Sweep(ctx, StatusPending, s.processPending)
}

func (s *EscrowCompletionService) ProcessPaid(ctx context.Context) (SweepStats, error) {
	if s == nil || s.processor == nil {
		return SweepStats{}, fmt.Errorf("core: escrow completion service is not configured")
	}
	return s.processor.Sweep(ctx, StatusPaid, s.processPaid)
}

func (s *EscrowCompletionService) processPending(ctx context.Context, item *EscrowCompletion) error {
	if !item.HasFinalResults() {
		results, err := s.results.ComputeResults(ctx, item.ChainID, item.EscrowAddress)
		if err != nil {
			return err
		}
		if strings.TrimSpace(results.URL) == "" || strings.TrimSpace(results.Hash) == "" {
			return MissingDataError("final results location is empty", itemFields(&item.QueueItem))
		}
		item.FinalResultsURL = results.URL
		item.FinalResultsHash = results.Hash
		item.UpdatedAt = s.now().UTC()
		// persisted before payout so results are never recomputed
		if err := s.store.Update(ctx, item); err != nil {
			return err
		}
	}

	if err := s.payouts.ExecutePayout(ctx, item.ChainID, item.EscrowAddress, FinalResults{
		URL:  item.FinalResultsURL,
		Hash: item.FinalResultsHash,
	}); err != nil {
		return err
	}
	item.Status = StatusPaid
	return nil
}

func (s *EscrowCompletionService) processPaid(ctx context.Context, item *EscrowCompletion) error {
	client, err := s.escrows.ForChain(ctx, item.ChainID)
	if err != nil {
		return err
	}
	if client == nil {
		return InvariantError(ErrEscrowClientUnavailable.Error(), itemFields(&item.QueueItem))
	}

	status, err := client.GetStatus(ctx, item.EscrowAddress)
	if err != nil {
		return ExternalError(err, PipelineErrorChainCallFailed, "escrow status lookup failed", itemFields(&item.QueueItem))
	}
	if !status.Finalized() {
		if err := client.Complete(ctx, item.EscrowAddress, s.txOptions); err != nil {
			return ExternalError(err, PipelineErrorChainCallFailed, "escrow complete failed", itemFields(&item.QueueItem))
		}
		s.assessReputation(ctx, item)
	}

	urls, err := s.resolveWebhookURLs(ctx, client, item)
	if err != nil {
		return err
	}
	payload := WebhookPayload{
		ChainID:       item.ChainID,
		EscrowAddress: item.EscrowAddress,
		EventType:     EventTypeEscrowCompleted,
	}
	for _, url := range urls {
		webhook, err := NewOutgoingWebhook(payload, url, s.now())
		if err != nil {
			return err
		}
		if _, err := s.webhooks.CreateUnique(ctx, webhook); err != nil {
			return err
		}
	}
	item.Status = StatusCompleted
	return nil
}

func (s *EscrowCompletionService) assessReputation(ctx context.Context, item *EscrowCompletion) {
	if s.reputation == nil {
		return
	}
	if err := s.reputation.AssessReputationScores(ctx, item.ChainID, item.EscrowAddress); err != nil {
		fields := itemFields(&item.QueueItem)
		fields["error"] = err.Error()
		logWithLevel(ctx, s.logger, "warn", "reputation assessment failed", fields)
	}
}

// resolveWebhookURLs returns the job launcher, exchange oracle and recording
// oracle webhook urls in that order, or the first resolution failure.
func (s *EscrowCompletionService) resolveWebhookURLs(ctx context.Context, client EscrowClient, item *EscrowCompletion) ([]string, error) {
	lookups := []struct {
		role    OperatorRole
		address func(context.Context, string) (string, error)
	}{
		{role: OperatorRoleJobLauncher, address: client.GetJobLauncherAddress},
		{role: OperatorRoleExchangeOracle, address: client.GetExchangeOracleAddress},
		{role: OperatorRoleRecordingOracle, address: client.GetRecordingOracleAddress},
	}

	urls := make([]string, 0, len(lookups))
	for _, lookup := range lookups {
		fields := itemFields(&item.QueueItem)
		fields["role"] = string(lookup.role)

		address, err := lookup.address(ctx, item.EscrowAddress)
		if err != nil {
			return nil, ExternalError(err, PipelineErrorChainCallFailed, "operator address lookup failed", fields)
		}
		if strings.TrimSpace(address) == "" {
			return nil, MissingDataError("operator address is not set on escrow", fields)
		}
		fields["operator_address"] = address

		operator, err := s.operators.GetOperator(ctx, item.ChainID, address)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(operator.WebhookURL) == "" {
			return nil, MissingDataError("operator webhook url is not registered", fields)
		}
		urls = append(urls, strings.TrimSpace(operator.WebhookURL))
	}
	return urls, nil
}
