package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/storefront/backend/internal/domain/crmsync"
)

// SyncQueueItemModel is the persistence model for the CRM sync outbox.
// Column names follow the audit shape operators query directly.
type SyncQueueItemModel struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey"`
	EntityType       string            `gorm:"type:varchar(50);not null;index:idx_sync_queue_entity,priority:1"`
	EntityID         string            `gorm:"type:varchar(100);not null;index:idx_sync_queue_entity,priority:2"`
	Operation        crmsync.Operation `gorm:"type:varchar(10);not null"`
	ZohoService      string            `gorm:"column:zoho_service;type:varchar(50);not null"`
	ZohoEntityType   string            `gorm:"column:zoho_entity_type;type:varchar(50);not null"`
	Status           crmsync.Status    `gorm:"type:varchar(20);not null;index:idx_sync_queue_due,priority:1"`
	AttemptCount     int               `gorm:"not null"`
	NextRetryAt      time.Time         `gorm:"not null;index:idx_sync_queue_due,priority:2"`
	ErrorMessage     string            `gorm:"type:text"`
	ErrorDetails     datatypes.JSON
	ResponsePayload  datatypes.JSON
	RequestPayload   datatypes.JSON `gorm:"not null"`
	ClaimedAt        *time.Time
	LastAttemptAt    *time.Time
	CompletedAt      *time.Time
	ArchivedAt       *time.Time
	CreatedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (SyncQueueItemModel) TableName() string {
	return "crm_sync_queue"
}

// ToDomain converts the persistence model to a domain QueueItem
func (m *SyncQueueItemModel) ToDomain() *crmsync.QueueItem {
	return &crmsync.QueueItem{
		ID:               m.ID,
		EntityType:       m.EntityType,
		EntityID:         m.EntityID,
		Operation:        m.Operation,
		TargetService:    m.ZohoService,
		TargetEntityType: m.ZohoEntityType,
		RequestPayload:   rawOrNil(m.RequestPayload),
		Status:           m.Status,
		AttemptCount:     m.AttemptCount,
		NextRetryAt:      m.NextRetryAt,
		ErrorMessage:     m.ErrorMessage,
		ErrorDetails:     rawOrNil(m.ErrorDetails),
		ResponsePayload:  rawOrNil(m.ResponsePayload),
		ClaimedAt:        m.ClaimedAt,
		LastAttemptAt:    m.LastAttemptAt,
		CompletedAt:      m.CompletedAt,
		ArchivedAt:       m.ArchivedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// SyncQueueItemModelFromDomain creates a persistence model from a domain QueueItem
func SyncQueueItemModelFromDomain(q *crmsync.QueueItem) *SyncQueueItemModel {
	return &SyncQueueItemModel{
		ID:              q.ID,
		EntityType:      q.EntityType,
		EntityID:        q.EntityID,
		Operation:       q.Operation,
		ZohoService:     q.TargetService,
		ZohoEntityType:  q.TargetEntityType,
		RequestPayload:  datatypes.JSON(q.RequestPayload),
		Status:          q.Status,
		AttemptCount:    q.AttemptCount,
		NextRetryAt:     q.NextRetryAt,
		ErrorMessage:    q.ErrorMessage,
		ErrorDetails:    datatypes.JSON(q.ErrorDetails),
		ResponsePayload: datatypes.JSON(q.ResponsePayload),
		ClaimedAt:       q.ClaimedAt,
		LastAttemptAt:   q.LastAttemptAt,
		CompletedAt:     q.CompletedAt,
		ArchivedAt:      q.ArchivedAt,
		CreatedAt:       q.CreatedAt,
		UpdatedAt:       q.UpdatedAt,
	}
}

func rawOrNil(j datatypes.JSON) json.RawMessage {
	if len(j) == 0 {
		return nil
	}
	return json.RawMessage(j)
}
