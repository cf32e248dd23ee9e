package core

import "testing"

func TestRedactSensitiveMapMasksSigningMaterial(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"chain_id":         int64(80002),
		"escrow_address":   "0x52fe0bd9b6a5b8c5e5a2b4b2d7a3e0f6f8f3b5a2",
		"signature_header": "human-signature",
		"signature":        "0xdeadbeef",
		"operator": map[string]any{
			"private_key": "4c0883a6",
			"url":         "https://oracle.example.com/webhook",
		},
		"headers": []any{map[string]any{"Authorization": "Bearer cron"}},
	})

	if redacted["chain_id"] != int64(80002) || redacted["signature_header"] != "human-signature" {
		t.Fatalf("expected traceability keys preserved, got %v", redacted)
	}
	if redacted["signature"] != RedactedValue {
		t.Fatalf("expected signature redacted, got %v", redacted["signature"])
	}
	operator := redacted["operator"].(map[string]any)
	if operator["private_key"] != RedactedValue || operator["url"] != "https://oracle.example.com/webhook" {
		t.Fatalf("unexpected nested redaction %v", operator)
	}
	header := redacted["headers"].([]any)[0].(map[string]any)
	if header["Authorization"] != RedactedValue {
		t.Fatalf("expected authorization header redacted, got %v", header)
	}
}
