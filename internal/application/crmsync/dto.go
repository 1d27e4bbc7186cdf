package crmsync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/crmsync"
)

// SyncLogDTO is a sync queue item as shown in the admin console
type SyncLogDTO struct {
	ID              uuid.UUID       `json:"id"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	Operation       string          `json:"operation"`
	ZohoService     string          `json:"zoho_service"`
	ZohoEntityType  string          `json:"zoho_entity_type"`
	Status          string          `json:"status"`
	AttemptCount    int             `json:"attempt_count"`
	NextRetryAt     time.Time       `json:"next_retry_at"`
	ErrorMessage    *string         `json:"error_message"`
	ErrorDetails    json.RawMessage `json:"error_details"`
	ResponsePayload json.RawMessage `json:"response_payload"`
	RequestPayload  json.RawMessage `json:"request_payload"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SyncLogList is one page of sync log entries
type SyncLogList struct {
	Data     []SyncLogDTO `json:"data"`
	Count    int64        `json:"count"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

// StatsDTO holds item counts per status
type StatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Retrying   int64 `json:"retrying"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

func toSyncLogDTO(item *crmsync.QueueItem) SyncLogDTO {
	dto := SyncLogDTO{
		ID:              item.ID,
		EntityType:      item.EntityType,
		EntityID:        item.EntityID,
		Operation:       string(item.Operation),
		ZohoService:     item.TargetService,
		ZohoEntityType:  item.TargetEntityType,
		Status:          string(item.Status),
		AttemptCount:    item.AttemptCount,
		NextRetryAt:     item.NextRetryAt,
		ErrorDetails:    nullJSON(item.ErrorDetails),
		ResponsePayload: nullJSON(item.ResponsePayload),
		RequestPayload:  nullJSON(item.RequestPayload),
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
	if item.ErrorMessage != "" {
		msg := item.ErrorMessage
		dto.ErrorMessage = &msg
	}
	return dto
}

// nullJSON renders absent JSON columns as null rather than omitting them
func nullJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func toStatsDTO(counts map[crmsync.Status]int64) *StatsDTO {
	stats := &StatsDTO{
		Pending:    counts[crmsync.StatusPending],
		Processing: counts[crmsync.StatusProcessing],
		Retrying:   counts[crmsync.StatusRetrying],
		Succeeded:  counts[crmsync.StatusSucceeded],
		Failed:     counts[crmsync.StatusFailed],
	}
	stats.Total = stats.Pending + stats.Processing + stats.Retrying + stats.Succeeded + stats.Failed
	return stats
}
