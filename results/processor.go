package results

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-escrow-pipeline/core"
	glog "github.com/goliatone/go-logger/glog"
)

type ProcessorConfig struct {
	Escrows   core.EscrowClientResolver
	Storage   core.StorageService
	Registry  *Registry
	TxOptions core.TxOptions
	Logger    core.Logger
}

// Processor implements core.ResultProcessor and core.PayoutExecutor.
type Processor struct {
	escrows   core.EscrowClientResolver
	storage   core.StorageService
	registry  *Registry
	txOptions core.TxOptions
	logger    core.Logger
}

func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Escrows == nil {
		return nil, fmt.Errorf("results: escrow client resolver is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("results: storage service is required")
	}
	registry := cfg.Registry
	if registry == nil {
		var err error
		registry, err = NewDefaultRegistry(cfg.Storage)
		if err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		_, logger = glog.Resolve("pipeline.results", nil, nil)
	}
	return &Processor{
		escrows:   cfg.Escrows,
		storage:   cfg.Storage,
		registry:  registry,
		txOptions: cfg.TxOptions,
		logger:    logger,
	}, nil
}

func (p *Processor) ComputeResults(ctx context.Context, chainID int64, escrowAddress string) (core.FinalResults, error) {
	calculator, in, _, err := p.prepare(ctx, chainID, escrowAddress)
	if err != nil {
		return core.FinalResults{}, err
	}
	results, err := calculator.SaveResults(ctx, in)
	if err != nil {
		return core.FinalResults{}, err
	}
	if strings.TrimSpace(results.URL) == "" || strings.TrimSpace(results.Hash) == "" {
		return core.FinalResults{}, core.InvariantError("results: calculator returned empty final results", map[string]any{
			"escrow_address": in.EscrowAddress,
			"request_type":   in.Manifest.RequestType,
		})
	}
	p.logger.Info("final results saved",
		"chain_id", chainID,
		"escrow_address", in.EscrowAddress,
		"url", results.URL,
	)
	return results, nil
}

// ExecutePayout skips escrows the chain already reports as paid, so a retry
// after a lost acknowledgement never pays twice.
func (p *Processor) ExecutePayout(ctx context.Context, chainID int64, escrowAddress string, results core.FinalResults) error {
	calculator, in, client, err := p.prepare(ctx, chainID, escrowAddress)
	if err != nil {
		return err
	}
	status, err := client.GetStatus(ctx, in.EscrowAddress)
	if err != nil {
		return core.ExternalError(err, core.PipelineErrorChainCallFailed, "results: read escrow status", map[string]any{
			"escrow_address": in.EscrowAddress,
		})
	}
	if status == core.EscrowStatusPaid || status == core.EscrowStatusComplete {
		p.logger.Info("payout skipped, escrow already paid",
			"chain_id", chainID,
			"escrow_address", in.EscrowAddress,
			"status", string(status),
		)
		return nil
	}

	content, err := p.storage.Download(ctx, results.URL)
	if err != nil {
		return err
	}
	if hash := ContentHash(content); hash != results.Hash {
		return core.InvariantError("results: stored final results do not match recorded hash", map[string]any{
			"escrow_address": in.EscrowAddress,
			"url":            results.URL,
			"expected_hash":  results.Hash,
			"actual_hash":    hash,
		})
	}

	payouts, err := calculator.CalculatePayouts(ctx, in)
	if err != nil {
		return err
	}
	if err := client.BulkPayOut(ctx, in.EscrowAddress, payouts, results.URL, results.Hash, p.txOptions); err != nil {
		return core.ExternalError(err, core.PipelineErrorChainCallFailed, "results: bulk payout", map[string]any{
			"escrow_address": in.EscrowAddress,
			"recipients":     len(payouts),
		})
	}
	p.logger.Info("payout executed",
		"chain_id", chainID,
		"escrow_address", in.EscrowAddress,
		"recipients", len(payouts),
	)
	return nil
}

func (p *Processor) prepare(ctx context.Context, chainID int64, escrowAddress string) (Calculator, Input, core.EscrowClient, error) {
	if p == nil || p.escrows == nil {
		return nil, Input{}, nil, fmt.Errorf("results: processor is not configured")
	}
	address := core.NormalizeAddress(escrowAddress)
	client, err := p.escrows.ForChain(ctx, chainID)
	if err != nil {
		return nil, Input{}, nil, err
	}
	manifestURL, err := client.GetManifestURL(ctx, address)
	if err != nil {
		return nil, Input{}, nil, core.ExternalError(err, core.PipelineErrorChainCallFailed, "results: read manifest url", map[string]any{
			"escrow_address": address,
		})
	}
	if strings.TrimSpace(manifestURL) == "" {
		return nil, Input{}, nil, core.MissingDataError("results: manifest url is not set", map[string]any{
			"escrow_address": address,
		})
	}
	var manifest Manifest
	if err := downloadJSON(ctx, p.storage, manifestURL, &manifest); err != nil {
		return nil, Input{}, nil, err
	}
	calculator, err := p.registry.Resolve(manifest.normalizedRequestType())
	if err != nil {
		return nil, Input{}, nil, err
	}
	intermediateURL, err := client.GetIntermediateResultsURL(ctx, address)
	if err != nil {
		return nil, Input{}, nil, core.ExternalError(err, core.PipelineErrorChainCallFailed, "results: read intermediate results url", map[string]any{
			"escrow_address": address,
		})
	}
	if strings.TrimSpace(intermediateURL) == "" {
		return nil, Input{}, nil, core.MissingDataError("results: intermediate results url is not set", map[string]any{
			"escrow_address": address,
		})
	}
	return calculator, Input{
		ChainID:                chainID,
		EscrowAddress:          address,
		Manifest:               manifest,
		IntermediateResultsURL: intermediateURL,
	}, client, nil
}

var (
	_ core.ResultProcessor = (*Processor)(nil)
	_ core.PayoutExecutor  = (*Processor)(nil)
	_ Calculator           = (*FortuneCalculator)(nil)
	_ Calculator           = (*CVATCalculator)(nil)
)
