package webhooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-escrow-pipeline/core"
)

var ErrSignerNotAllowed = errors.New("webhooks: signer is not an oracle of the escrow")

// Verifier checks the signature of a received payload. body is the raw
// request body the signature was produced over.
type Verifier interface {
	Verify(ctx context.Context, payload core.WebhookPayload, body []byte, signature string) error
}

// EscrowSignerVerifier accepts a payload only when it was signed by the job
// launcher, exchange oracle or recording oracle registered on the escrow.
type EscrowSignerVerifier struct {
	escrows core.EscrowClientResolver
}

func NewEscrowSignerVerifier(escrows core.EscrowClientResolver) (*EscrowSignerVerifier, error) {
	if escrows == nil {
		return nil, fmt.Errorf("webhooks: escrow client resolver is required")
	}
	return &EscrowSignerVerifier{escrows: escrows}, nil
}

func (v *EscrowSignerVerifier) Verify(ctx context.Context, payload core.WebhookPayload, body []byte, signature string) error {
	if v == nil || v.escrows == nil {
		return fmt.Errorf("webhooks: verifier is not configured")
	}
	signer, err := RecoverSigner(body, signature)
	if err != nil {
		return err
	}
	client, err := v.escrows.ForChain(ctx, payload.ChainID)
	if err != nil {
		return err
	}
	address := core.NormalizeAddress(payload.EscrowAddress)
	lookups := []func(context.Context, string) (string, error){
		client.GetJobLauncherAddress,
		client.GetExchangeOracleAddress,
		client.GetRecordingOracleAddress,
	}
	for _, lookup := range lookups {
		allowed, err := lookup(ctx, address)
		if err != nil {
			return err
		}
		if allowed != "" && core.NormalizeAddress(allowed) == signer {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSignerNotAllowed, signer)
}

// StaticVerifier accepts signatures from a fixed address set.
type StaticVerifier struct {
	allowed map[string]struct{}
}

func NewStaticVerifier(addresses ...string) *StaticVerifier {
	allowed := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		if normalized := core.NormalizeAddress(address); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return &StaticVerifier{allowed: allowed}
}

func (v *StaticVerifier) Verify(_ context.Context, _ core.WebhookPayload, body []byte, signature string) error {
	signer, err := RecoverSigner(body, signature)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("%w: %s", ErrSignerNotAllowed, signer)
	}
	if _, ok := v.allowed[signer]; !ok {
		return fmt.Errorf("%w: %s", ErrSignerNotAllowed, signer)
	}
	return nil
}

var (
	_ Verifier = (*EscrowSignerVerifier)(nil)
	_ Verifier = (*StaticVerifier)(nil)
)
