package sqlstore

import (
	"time"

	"github.com/goliatone/go-escrow-pipeline/core"
)

func queueItemFromColumns(
	id string,
	chainID int64,
	escrowAddress string,
	status string,
	retries int,
	waitUntil time.Time,
	failureDetail string,
	createdAt time.Time,
	updatedAt time.Time,
) core.QueueItem {
	return core.QueueItem{
		ID:            id,
		ChainID:       chainID,
		EscrowAddress: escrowAddress,
		Status:        core.QueueStatus(status),
		RetriesCount:  retries,
		WaitUntil:     waitUntil.UTC(),
		FailureDetail: failureDetail,
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     updatedAt.UTC(),
	}
}

func newEscrowCompletionRecord(item *core.EscrowCompletion) *escrowCompletionRecord {
	return &escrowCompletionRecord{
		ID:               item.ID,
		ChainID:          item.ChainID,
		EscrowAddress:    core.NormalizeAddress(item.EscrowAddress),
		Status:           string(item.Status),
		RetriesCount:     item.RetriesCount,
		WaitUntil:        item.WaitUntil.UTC(),
		FailureDetail:    item.FailureDetail,
		FinalResultsURL:  item.FinalResultsURL,
		FinalResultsHash: item.FinalResultsHash,
		CreatedAt:        item.CreatedAt.UTC(),
		UpdatedAt:        item.UpdatedAt.UTC(),
	}
}

func (r *escrowCompletionRecord) toDomain() *core.EscrowCompletion {
	if r == nil {
		return nil
	}
	return &core.EscrowCompletion{
		QueueItem: queueItemFromColumns(
			r.ID, r.ChainID, r.EscrowAddress, r.Status, r.RetriesCount,
			r.WaitUntil, r.FailureDetail, r.CreatedAt, r.UpdatedAt,
		),
		FinalResultsURL:  r.FinalResultsURL,
		FinalResultsHash: r.FinalResultsHash,
	}
}

func newIncomingWebhookRecord(item *core.IncomingWebhook) *incomingWebhookRecord {
	return &incomingWebhookRecord{
		ID:            item.ID,
		ChainID:       item.ChainID,
		EscrowAddress: core.NormalizeAddress(item.EscrowAddress),
		EventType:     string(item.EventType),
		EventData:     copyAnyMap(item.EventData),
		Status:        string(item.Status),
		RetriesCount:  item.RetriesCount,
		WaitUntil:     item.WaitUntil.UTC(),
		FailureDetail: item.FailureDetail,
		CreatedAt:     item.CreatedAt.UTC(),
		UpdatedAt:     item.UpdatedAt.UTC(),
	}
}

func (r *incomingWebhookRecord) toDomain() *core.IncomingWebhook {
	if r == nil {
		return nil
	}
	item := &core.IncomingWebhook{
		QueueItem: queueItemFromColumns(
			r.ID, r.ChainID, r.EscrowAddress, r.Status, r.RetriesCount,
			r.WaitUntil, r.FailureDetail, r.CreatedAt, r.UpdatedAt,
		),
		EventType: core.EventType(r.EventType),
	}
	if len(r.EventData) > 0 {
		item.EventData = copyAnyMap(r.EventData)
	}
	return item
}

func newOutgoingWebhookRecord(item *core.OutgoingWebhook) *outgoingWebhookRecord {
	return &outgoingWebhookRecord{
		ID:            item.ID,
		ChainID:       item.ChainID,
		EscrowAddress: core.NormalizeAddress(item.EscrowAddress),
		Hash:          item.Hash,
		URL:           item.URL,
		Payload:       item.Payload.Normalized(),
		Status:        string(item.Status),
		RetriesCount:  item.RetriesCount,
		WaitUntil:     item.WaitUntil.UTC(),
		FailureDetail: item.FailureDetail,
		CreatedAt:     item.CreatedAt.UTC(),
		UpdatedAt:     item.UpdatedAt.UTC(),
	}
}

func (r *outgoingWebhookRecord) toDomain() *core.OutgoingWebhook {
	if r == nil {
		return nil
	}
	return &core.OutgoingWebhook{
		QueueItem: queueItemFromColumns(
			r.ID, r.ChainID, r.EscrowAddress, r.Status, r.RetriesCount,
			r.WaitUntil, r.FailureDetail, r.CreatedAt, r.UpdatedAt,
		),
		Hash:    r.Hash,
		URL:     r.URL,
		Payload: r.Payload.Normalized(),
	}
}

func newSweepLockRecord(lock core.SweepLock) *sweepLockRecord {
	record := &sweepLockRecord{
		ID:        lock.ID,
		JobType:   string(lock.JobType),
		StartedAt: lock.StartedAt.UTC(),
		CreatedAt: lock.CreatedAt.UTC(),
		UpdatedAt: lock.UpdatedAt.UTC(),
	}
	if lock.CompletedAt != nil {
		completed := lock.CompletedAt.UTC()
		record.CompletedAt = &completed
	}
	return record
}

func (r *sweepLockRecord) toDomain() core.SweepLock {
	if r == nil {
		return core.SweepLock{}
	}
	lock := core.SweepLock{
		ID:        r.ID,
		JobType:   core.SweepJobType(r.JobType),
		StartedAt: r.StartedAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.CompletedAt != nil {
		completed := r.CompletedAt.UTC()
		lock.CompletedAt = &completed
	}
	return lock
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
