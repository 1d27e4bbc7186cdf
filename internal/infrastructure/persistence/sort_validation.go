package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes the sort order to ASC or DESC.
// Anything other than asc, in any case, is DESC.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField if it is whitelisted, otherwise defaultField.
// Only whitelisted names ever reach an ORDER BY clause.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// SyncLogSortFields are the crm_sync_queue columns the admin console may sort by
var SyncLogSortFields = map[string]bool{
	"created_at":      true,
	"updated_at":      true,
	"status":          true,
	"entity_type":     true,
	"operation":       true,
	"attempt_count":   true,
	"next_retry_at":   true,
	"last_attempt_at": true,
	"completed_at":    true,
}

// syncLogSortAliases maps the console's camelCase names to columns
var syncLogSortAliases = map[string]string{
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
	"entityType":    "entity_type",
	"attemptCount":  "attempt_count",
	"nextRetryAt":   "next_retry_at",
	"lastAttemptAt": "last_attempt_at",
	"completedAt":   "completed_at",
}

func syncLogOrder(sortBy, sortOrder string) string {
	if alias, ok := syncLogSortAliases[strings.TrimSpace(sortBy)]; ok {
		sortBy = alias
	}
	return ValidateSortField(sortBy, SyncLogSortFields, "created_at") + " " + ValidateSortOrder(sortOrder)
}
