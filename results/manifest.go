package results

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-escrow-pipeline/core"
)

const (
	RequestTypeFortune                 = "fortune"
	RequestTypeImageBoxes              = "image_boxes"
	RequestTypeImagePoints             = "image_points"
	RequestTypeImagePolygons           = "image_polygons"
	RequestTypeImageBoxesFromPoints    = "image_boxes_from_points"
	RequestTypeImageSkeletonsFromBoxes = "image_skeletons_from_boxes"
)

// Manifest is the subset of the escrow manifest the calculators read.
type Manifest struct {
	RequestType         string `json:"request_type"`
	FundAmount          string `json:"fund_amount"`
	SubmissionsRequired int    `json:"submissions_required"`
	JobBounty           string `json:"job_bounty"`
}

func (m Manifest) normalizedRequestType() string {
	return strings.ToLower(strings.TrimSpace(m.RequestType))
}

// Input is everything a calculator needs about one escrow.
type Input struct {
	ChainID                int64
	EscrowAddress          string
	Manifest               Manifest
	IntermediateResultsURL string
}

func downloadJSON(ctx context.Context, storage core.StorageService, url string, target any) error {
	content, err := storage.Download(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, target); err != nil {
		return core.InvariantError(fmt.Sprintf("results: decode %s: %v", url, err), map[string]any{"url": url})
	}
	return nil
}

// ContentHash is the hash recorded on chain for a results file.
func ContentHash(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

func resultsKey(chainID int64, escrowAddress string, filename string) string {
	return fmt.Sprintf("%d/%s/%s", chainID, core.NormalizeAddress(escrowAddress), filename)
}

func parseAmount(raw string, field string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, core.InvariantError(
			fmt.Sprintf("results: manifest %s must be a positive integer", field),
			map[string]any{field: raw},
		)
	}
	return amount, nil
}
