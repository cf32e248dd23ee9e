package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	json "github.com/goccy/go-json"
)

// CanonicalPayload encodes a payload with snake_case keys in sorted order so
// the same logical payload always yields the same bytes.
func CanonicalPayload(payload WebhookPayload) ([]byte, error) {
	normalized := payload.Normalized()
	normalized.EventData = snakeCaseKeys(normalized.EventData)
	body, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("core: encode webhook payload: %w", err)
	}
	return body, nil
}

// OutgoingWebhookHash is the dedup key of an outgoing webhook: one row per
// payload and destination url.
func OutgoingWebhookHash(payload WebhookPayload, url string) (string, error) {
	body, err := CanonicalPayload(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.New()
	sum.Write(body)
	sum.Write([]byte(strings.TrimSpace(url)))
	return hex.EncodeToString(sum.Sum(nil)), nil
}

func snakeCaseKeys(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[toSnakeCase(key)] = snakeCaseValue(value)
	}
	return out
}

func snakeCaseValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return snakeCaseKeys(typed)
	case []any:
		out := make([]any, len(typed))
		for i, entry := range typed {
			out[i] = snakeCaseValue(entry)
		}
		return out
	default:
		return value
	}
}

func toSnakeCase(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return key
	}
	runes := []rune(key)
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '-' || r == ' ' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
