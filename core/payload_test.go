package core

import (
	"strings"
	"testing"
)

func TestCanonicalPayloadIsStable(t *testing.T) {
	first := WebhookPayload{
		ChainID:       1,
		EscrowAddress: "0x52FE3AC2AE3B5A4F1D77AD11FF1FA3B6E3B0B5A2",
		EventType:     EventTypeEscrowFailed,
		EventData:     map[string]any{"reason": "timeout", "jobId": 7},
	}
	second := WebhookPayload{
		ChainID:       1,
		EscrowAddress: testEscrowAddress,
		EventType:     EventTypeEscrowFailed,
		EventData:     map[string]any{"job_id": 7, "reason": "timeout"},
	}
	a, err := CanonicalPayload(first)
	if err != nil {
		t.Fatalf("canonical payload: %v", err)
	}
	b, err := CanonicalPayload(second)
	if err != nil {
		t.Fatalf("canonical payload: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected identical encodings:\n%s\n%s", a, b)
	}
	want := `{"chain_id":1,"escrow_address":"` + testEscrowAddress + `","event_type":"escrow_failed","event_data":{"job_id":7,"reason":"timeout"}}`
	if string(a) != want {
		t.Fatalf("unexpected canonical body %s", a)
	}
}

func TestOutgoingWebhookHashDependsOnURL(t *testing.T) {
	payload := WebhookPayload{ChainID: 1, EscrowAddress: testEscrowAddress, EventType: EventTypeEscrowCompleted}
	a, err := OutgoingWebhookHash(payload, "https://a.example.com")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, _ := OutgoingWebhookHash(payload, "https://b.example.com")
	again, _ := OutgoingWebhookHash(payload, " https://a.example.com ")
	if a == b {
		t.Fatalf("expected different urls to yield different hashes")
	}
	if a != again {
		t.Fatalf("expected hash to ignore surrounding whitespace")
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Fatalf("expected lowercase sha256 hex, got %q", a)
	}
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"jobId":          "job_id",
		"escrow_address": "escrow_address",
		"HTTPStatus":     "http_status",
		"chainID":        "chain_id",
	}
	for in, want := range cases {
		if got := toSnakeCase(in); got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
}
