package core

import (
	"context"
	"sort"
	"strings"
)

func logWithLevel(ctx context.Context, logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	fields = RedactSensitiveMap(fields)
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logger.Debug(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func recordCounter(ctx context.Context, metrics MetricsRecorder, name string, value int64, tags map[string]string) {
	if metrics == nil || value == 0 {
		return
	}
	metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func recordHistogram(ctx context.Context, metrics MetricsRecorder, name string, value float64, tags map[string]string) {
	if metrics == nil {
		return
	}
	metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func itemFields(item *QueueItem) map[string]any {
	if item == nil {
		return map[string]any{}
	}
	return map[string]any{
		"id":             item.ID,
		"chain_id":       item.ChainID,
		"escrow_address": item.EscrowAddress,
		"status":         string(item.Status),
		"retries_count":  item.RetriesCount,
	}
}
