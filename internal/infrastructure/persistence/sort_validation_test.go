package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns DESC", "", "DESC"},
		{"asc lowercase returns ASC", "asc", "ASC"},
		{"desc returns DESC", "desc", "DESC"},
		{"injection attempt returns DESC", "ASC; DROP TABLE crm_sync_queue;--", "DESC"},
		{"whitespace around ASC returns ASC", "  asc  ", "ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestSyncLogOrder(t *testing.T) {
	tests := []struct {
		name      string
		sortBy    string
		sortOrder string
		expected  string
	}{
		{"default", "", "", "created_at DESC"},
		{"column ascending", "attempt_count", "asc", "attempt_count ASC"},
		{"camelCase alias", "nextRetryAt", "ASC", "next_retry_at ASC"},
		{"unknown column", "payload", "asc", "created_at ASC"},
		{"injection in column", "status; DROP TABLE crm_sync_queue;--", "", "created_at DESC"},
		{"subquery in column", "id, (SELECT 1)", "desc", "created_at DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, syncLogOrder(tt.sortBy, tt.sortOrder))
		})
	}
}
