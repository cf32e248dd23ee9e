package results

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-escrow-pipeline/core"
)

const (
	fortuneIntermediateFile = "results.json"
	fortuneResultsFile      = "final_results.json"
)

// FortuneSolution is one worker submission recorded by the recording oracle.
// A submission with a non empty Error was rejected.
type FortuneSolution struct {
	WorkerAddress string `json:"worker_address"`
	Solution      string `json:"solution"`
	Error         string `json:"error,omitempty"`
}

// FortuneCalculator splits the escrow fund equally among accepted solutions.
type FortuneCalculator struct {
	storage core.StorageService
}

func NewFortuneCalculator(storage core.StorageService) *FortuneCalculator {
	return &FortuneCalculator{storage: storage}
}

func (c *FortuneCalculator) SaveResults(ctx context.Context, in Input) (core.FinalResults, error) {
	accepted, err := c.acceptedSolutions(ctx, in)
	if err != nil {
		return core.FinalResults{}, err
	}
	if in.Manifest.SubmissionsRequired > 0 && len(accepted) < in.Manifest.SubmissionsRequired {
		return core.FinalResults{}, core.MissingDataError(
			fmt.Sprintf("results: %d of %d required fortune solutions accepted", len(accepted), in.Manifest.SubmissionsRequired),
			map[string]any{"escrow_address": in.EscrowAddress},
		)
	}
	content, err := json.Marshal(accepted)
	if err != nil {
		return core.FinalResults{}, fmt.Errorf("results: encode fortune results: %w", err)
	}
	url, err := c.storage.Upload(ctx, resultsKey(in.ChainID, in.EscrowAddress, fortuneResultsFile), content, "application/json")
	if err != nil {
		return core.FinalResults{}, err
	}
	return core.FinalResults{URL: url, Hash: ContentHash(content)}, nil
}

func (c *FortuneCalculator) CalculatePayouts(ctx context.Context, in Input) ([]core.Payout, error) {
	fund, err := parseAmount(in.Manifest.FundAmount, "fund_amount")
	if err != nil {
		return nil, err
	}
	accepted, err := c.acceptedSolutions(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return nil, core.InvariantError("results: no accepted fortune solutions", map[string]any{
			"escrow_address": in.EscrowAddress,
		})
	}
	share := new(big.Int).Div(fund, big.NewInt(int64(len(accepted))))
	payouts := make([]core.Payout, 0, len(accepted))
	for _, solution := range accepted {
		payouts = append(payouts, core.Payout{
			Recipient: core.NormalizeAddress(solution.WorkerAddress),
			Amount:    new(big.Int).Set(share),
		})
	}
	return payouts, nil
}

func (c *FortuneCalculator) acceptedSolutions(ctx context.Context, in Input) ([]FortuneSolution, error) {
	if c == nil || c.storage == nil {
		return nil, fmt.Errorf("results: fortune calculator is not configured")
	}
	var solutions []FortuneSolution
	if err := downloadJSON(ctx, c.storage, intermediateFile(in.IntermediateResultsURL, fortuneIntermediateFile), &solutions); err != nil {
		return nil, err
	}
	accepted := make([]FortuneSolution, 0, len(solutions))
	for _, solution := range solutions {
		if strings.TrimSpace(solution.Error) != "" || strings.TrimSpace(solution.WorkerAddress) == "" {
			continue
		}
		accepted = append(accepted, solution)
	}
	return accepted, nil
}
