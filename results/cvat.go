package results

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/goliatone/go-escrow-pipeline/core"
)

const (
	cvatAnnotationMetaFile = "annotation_meta.json"
	cvatAnnotationsFile    = "resulting_annotations.zip"
)

type CVATJob struct {
	JobID         int64  `json:"job_id"`
	FinalResultID string `json:"final_result_id"`
}

type CVATResult struct {
	ID                     string  `json:"id"`
	JobID                  int64   `json:"job_id"`
	AnnotatorWalletAddress string  `json:"annotator_wallet_address"`
	AnnotationQuality      float64 `json:"annotation_quality"`
}

// CVATAnnotationMeta is the recording oracle's summary of validated jobs.
type CVATAnnotationMeta struct {
	Jobs    []CVATJob    `json:"jobs"`
	Results []CVATResult `json:"results"`
}

// CVATCalculator pays the manifest job bounty to the annotator whose result
// was selected as final for each job.
type CVATCalculator struct {
	storage core.StorageService
}

func NewCVATCalculator(storage core.StorageService) *CVATCalculator {
	return &CVATCalculator{storage: storage}
}

func (c *CVATCalculator) SaveResults(ctx context.Context, in Input) (core.FinalResults, error) {
	if c == nil || c.storage == nil {
		return core.FinalResults{}, fmt.Errorf("results: cvat calculator is not configured")
	}
	content, err := c.storage.Download(ctx, intermediateFile(in.IntermediateResultsURL, cvatAnnotationsFile))
	if err != nil {
		return core.FinalResults{}, err
	}
	url, err := c.storage.Upload(ctx, resultsKey(in.ChainID, in.EscrowAddress, cvatAnnotationsFile), content, "application/zip")
	if err != nil {
		return core.FinalResults{}, err
	}
	return core.FinalResults{URL: url, Hash: ContentHash(content)}, nil
}

func (c *CVATCalculator) CalculatePayouts(ctx context.Context, in Input) ([]core.Payout, error) {
	if c == nil || c.storage == nil {
		return nil, fmt.Errorf("results: cvat calculator is not configured")
	}
	bounty, err := parseAmount(in.Manifest.JobBounty, "job_bounty")
	if err != nil {
		return nil, err
	}
	var meta CVATAnnotationMeta
	if err := downloadJSON(ctx, c.storage, intermediateFile(in.IntermediateResultsURL, cvatAnnotationMetaFile), &meta); err != nil {
		return nil, err
	}

	resultsByID := make(map[string]CVATResult, len(meta.Results))
	for _, result := range meta.Results {
		resultsByID[result.ID] = result
	}
	totals := map[string]*big.Int{}
	for _, job := range meta.Jobs {
		result, ok := resultsByID[job.FinalResultID]
		if !ok {
			return nil, core.InvariantError(
				fmt.Sprintf("results: final result %q of job %d not found", job.FinalResultID, job.JobID),
				map[string]any{"escrow_address": in.EscrowAddress, "job_id": job.JobID},
			)
		}
		recipient := core.NormalizeAddress(result.AnnotatorWalletAddress)
		if recipient == "" {
			continue
		}
		if totals[recipient] == nil {
			totals[recipient] = new(big.Int)
		}
		totals[recipient].Add(totals[recipient], bounty)
	}
	if len(totals) == 0 {
		return nil, core.InvariantError("results: no annotators to pay", map[string]any{
			"escrow_address": in.EscrowAddress,
		})
	}

	recipients := make([]string, 0, len(totals))
	for recipient := range totals {
		recipients = append(recipients, recipient)
	}
	sort.Strings(recipients)
	payouts := make([]core.Payout, 0, len(recipients))
	for _, recipient := range recipients {
		payouts = append(payouts, core.Payout{Recipient: recipient, Amount: totals[recipient]})
	}
	return payouts, nil
}

// intermediateFile resolves a file inside the intermediate results location.
func intermediateFile(baseURL string, filename string) string {
	return strings.TrimSuffix(strings.TrimSpace(baseURL), "/") + "/" + filename
}
