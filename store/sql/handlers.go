package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// stringIDHandlers builds repository handlers for records keyed by a string
// uuid column named id.
func stringIDHandlers[R any](newRecord func() R, id func(R) *string) repository.ModelHandlers[R] {
	return repository.ModelHandlers[R]{
		NewRecord: newRecord,
		GetID: func(record R) uuid.UUID {
			value := id(record)
			if value == nil {
				return uuid.Nil
			}
			return parseUUID(*value)
		},
		SetID: func(record R, next uuid.UUID) {
			value := id(record)
			if value == nil {
				return
			}
			*value = next.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record R) string {
			value := id(record)
			if value == nil {
				return ""
			}
			return strings.TrimSpace(*value)
		},
	}
}

func escrowCompletionHandlers() repository.ModelHandlers[*escrowCompletionRecord] {
	return stringIDHandlers(
		func() *escrowCompletionRecord { return &escrowCompletionRecord{} },
		func(record *escrowCompletionRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func incomingWebhookHandlers() repository.ModelHandlers[*incomingWebhookRecord] {
	return stringIDHandlers(
		func() *incomingWebhookRecord { return &incomingWebhookRecord{} },
		func(record *incomingWebhookRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func outgoingWebhookHandlers() repository.ModelHandlers[*outgoingWebhookRecord] {
	return stringIDHandlers(
		func() *outgoingWebhookRecord { return &outgoingWebhookRecord{} },
		func(record *outgoingWebhookRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func sweepLockHandlers() repository.ModelHandlers[*sweepLockRecord] {
	return stringIDHandlers(
		func() *sweepLockRecord { return &sweepLockRecord{} },
		func(record *sweepLockRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func receiverRateLimitHandlers() repository.ModelHandlers[*receiverRateLimitRecord] {
	return stringIDHandlers(
		func() *receiverRateLimitRecord { return &receiverRateLimitRecord{} },
		func(record *receiverRateLimitRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
