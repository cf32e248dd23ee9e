package webhooks

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrSignatureRequired = errors.New("webhooks: signature is required")
	ErrInvalidSignature  = errors.New("webhooks: invalid signature")
)

type Signer interface {
	Sign(body []byte) (string, error)
	Address() string
}

// EthSigner produces EIP-191 personal-sign signatures with an operator key.
type EthSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

func NewEthSigner(hexKey string) (*EthSigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("webhooks: signer private key is required")
	}
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("webhooks: parse signer private key: %w", err)
	}
	return NewEthSignerFromKey(key)
}

func NewEthSignerFromKey(key *ecdsa.PrivateKey) (*EthSigner, error) {
	if key == nil {
		return nil, fmt.Errorf("webhooks: signer private key is required")
	}
	return &EthSigner{
		key:     key,
		address: strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()),
	}, nil
}

func (s *EthSigner) Sign(body []byte) (string, error) {
	if s == nil || s.key == nil {
		return "", fmt.Errorf("webhooks: signer is not configured")
	}
	signature, err := crypto.Sign(accounts.TextHash(body), s.key)
	if err != nil {
		return "", fmt.Errorf("webhooks: sign body: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(signature), nil
}

// Address is the lower-cased hex address of the signing key.
func (s *EthSigner) Address() string {
	if s == nil {
		return ""
	}
	return s.address
}

// RecoverSigner returns the lower-cased address that produced signature over
// body. Both 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(body []byte, signature string) (string, error) {
	trimmed := strings.TrimSpace(signature)
	if trimmed == "" {
		return "", ErrSignatureRequired
	}
	if !strings.HasPrefix(trimmed, "0x") {
		trimmed = "0x" + trimmed
	}
	raw, err := hexutil.Decode(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != crypto.SignatureLength {
		return "", fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(raw))
	}
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}
	publicKey, err := crypto.SigToPub(accounts.TextHash(body), raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(*publicKey).Hex()), nil
}
