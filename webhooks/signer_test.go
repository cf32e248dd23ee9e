package webhooks

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func newTestSigner(t *testing.T) *EthSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewEthSignerFromKey(key)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func TestEthSigner_SignatureRecoversToSignerAddress(t *testing.T) {
	signer := newTestSigner(t)
	body := []byte(`{"chain_id":1,"escrow_address":"0xabc","event_type":"escrow_completed"}`)

	signature, err := signer.Sign(body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(signature, "0x") || len(signature) != 2+2*crypto.SignatureLength {
		t.Fatalf("unexpected signature encoding %q", signature)
	}

	recovered, err := RecoverSigner(body, signature)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != signer.Address() {
		t.Fatalf("expected %s, got %s", signer.Address(), recovered)
	}

	tampered, err := RecoverSigner([]byte(`{"chain_id":2}`), signature)
	if err != nil {
		t.Fatalf("recover tampered: %v", err)
	}
	if tampered == signer.Address() {
		t.Fatalf("expected tampered body to recover a different address")
	}
}

func TestNewEthSigner_ParsesHexKey(t *testing.T) {
	signer, err := NewEthSigner("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if signer.Address() != "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23" {
		t.Fatalf("unexpected address %s", signer.Address())
	}
	if _, err := NewEthSigner("not-hex"); err == nil {
		t.Fatalf("expected invalid key error")
	}
	if _, err := NewEthSigner(""); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestRecoverSigner_RejectsMalformedSignatures(t *testing.T) {
	if _, err := RecoverSigner([]byte("{}"), ""); !errors.Is(err, ErrSignatureRequired) {
		t.Fatalf("expected signature required, got %v", err)
	}
	if _, err := RecoverSigner([]byte("{}"), "0x1234"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for short input, got %v", err)
	}
	if _, err := RecoverSigner([]byte("{}"), "zz"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for non hex input, got %v", err)
	}
}
