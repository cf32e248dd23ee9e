package inbound

import (
	"context"
	"errors"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-escrow-pipeline/core"
	"github.com/goliatone/go-escrow-pipeline/webhooks"
	glog "github.com/goliatone/go-logger/glog"
)

// Verifier checks a signature over the raw request body.
type Verifier interface {
	Verify(ctx context.Context, payload core.WebhookPayload, body []byte, signature string) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, payload core.WebhookPayload) (core.CreateResult, error)
}

type AcceptResult struct {
	Accepted   bool
	Deduped    bool
	StatusCode int
	Metadata   map[string]any
}

type Intake struct {
	Verifier Verifier
	Queue    Enqueuer

	logger core.Logger
}

// NewIntake builds an intake. A nil verifier skips signature checks, which
// only suits deployments that verify upstream.
func NewIntake(queue Enqueuer, verifier Verifier, logger core.Logger) (*Intake, error) {
	if queue == nil {
		return nil, inboundInternal("inbound: incoming webhook queue is required", nil)
	}
	if logger == nil {
		_, logger = glog.Resolve("pipeline.inbound", nil, nil)
	}
	return &Intake{Verifier: verifier, Queue: queue, logger: logger}, nil
}

// AcceptSigned decodes, validates and verifies a raw request body before
// Accept. Only signature failures are reported as unauthorized; a verifier
// that cannot reach the chain yields an external error.
func (i *Intake) AcceptSigned(ctx context.Context, body []byte, signature string) (AcceptResult, error) {
	if i == nil || i.Queue == nil {
		return AcceptResult{}, inboundInternal("inbound: intake is not configured", nil)
	}
	var payload core.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return AcceptResult{}, inboundBadInput(err, "inbound: decode webhook payload", nil)
	}
	payload = payload.Normalized()
	metadata := payloadMetadata(payload)
	if err := payload.Validate(); err != nil {
		return AcceptResult{}, inboundBadInput(err, err.Error(), metadata)
	}
	if i.Verifier == nil {
		return i.Accept(ctx, payload)
	}

	err := i.Verifier.Verify(ctx, payload, body, strings.TrimSpace(signature))
	if err == nil {
		return i.Accept(ctx, payload)
	}
	if !isSignatureError(err) {
		i.logger.Error("webhook signature check unavailable",
			"chain_id", payload.ChainID,
			"escrow_address", payload.EscrowAddress,
			"error", err,
		)
		return AcceptResult{StatusCode: http.StatusBadGateway, Metadata: metadata},
			core.ExternalError(err, core.PipelineErrorChainCallFailed, "inbound: verify webhook signer", metadata)
	}
	i.logger.Warn("webhook signature rejected",
		"chain_id", payload.ChainID,
		"escrow_address", payload.EscrowAddress,
		"error", err,
	)
	rejected := inboundWrapError(
		err,
		goerrors.CategoryAuth,
		"inbound: webhook signature verification failed",
		http.StatusUnauthorized,
		core.PipelineErrorUnauthorized,
		metadata,
	)
	return AcceptResult{StatusCode: http.StatusUnauthorized, Metadata: metadata}, rejected
}

// Accept records the payload as a pending incoming webhook.
func (i *Intake) Accept(ctx context.Context, payload core.WebhookPayload) (AcceptResult, error) {
	if i == nil || i.Queue == nil {
		return AcceptResult{}, inboundInternal("inbound: intake is not configured", nil)
	}
	payload = payload.Normalized()
	metadata := payloadMetadata(payload)
	if err := payload.Validate(); err != nil {
		return AcceptResult{}, inboundBadInput(err, err.Error(), metadata)
	}

	result, err := i.Queue.Enqueue(ctx, payload)
	if err != nil {
		if isValidationError(err) {
			return AcceptResult{}, inboundBadInput(err, err.Error(), metadata)
		}
		return AcceptResult{}, inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: record incoming webhook",
			http.StatusInternalServerError,
			core.PipelineErrorInternal,
			metadata,
		)
	}

	deduped := result == core.CreateResultDuplicate
	metadata["deduped"] = deduped
	i.logger.Info("webhook accepted",
		"chain_id", payload.ChainID,
		"escrow_address", payload.EscrowAddress,
		"event_type", string(payload.EventType),
		"deduped", deduped,
	)
	return AcceptResult{
		Accepted:   true,
		Deduped:    deduped,
		StatusCode: http.StatusAccepted,
		Metadata:   metadata,
	}, nil
}

func payloadMetadata(payload core.WebhookPayload) map[string]any {
	return map[string]any{
		"chain_id":       payload.ChainID,
		"escrow_address": core.NormalizeAddress(payload.EscrowAddress),
		"event_type":     string(payload.EventType),
	}
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhooks.ErrInvalidSignature) || errors.Is(err, webhooks.ErrSignerNotAllowed)
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidChainID) ||
		errors.Is(err, core.ErrInvalidEscrowAddress) ||
		errors.Is(err, core.ErrUnsupportedEventType)
}
