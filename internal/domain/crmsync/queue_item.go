package crmsync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/shared"
)

// Status is the processing status of a sync queue item
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusRetrying   Status = "retrying"
)

// AllStatuses lists every status in display order
var AllStatuses = []Status{StatusPending, StatusProcessing, StatusRetrying, StatusSucceeded, StatusFailed}

// IsValid checks if the status is known
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSucceeded, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition happens from s
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Operation is the mirrored change
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// IsValid checks if the operation is known
func (o Operation) IsValid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Errors
var (
	ErrItemNotFound     = shared.NewDomainError("SYNC_LOG_NOT_FOUND", "Sync log entry not found")
	ErrNotRetryable     = shared.NewDomainError("SYNC_LOG_NOT_RETRYABLE", "Only succeeded, failed or retrying entries can be retried")
	ErrInvalidOperation = shared.NewDomainError("INVALID_OPERATION", "Operation must be create, update or delete")
	ErrMissingTarget    = shared.NewDomainError("INVALID_TARGET", "Target service and target entity type are required")
	ErrMissingEntity    = shared.NewDomainError("INVALID_ENTITY", "Entity type and entity id are required")
	ErrConcurrentUpdate = shared.NewDomainError("CONCURRENCY_CONFLICT", "Sync log entry was modified by another process")
)

// QueueItem is one unit of work mirroring a local entity into the CRM.
// Rows are never deleted; they double as the sync audit trail.
type QueueItem struct {
	ID               uuid.UUID
	EntityType       string
	EntityID         string
	Operation        Operation
	TargetService    string
	TargetEntityType string
	RequestPayload   json.RawMessage
	Status           Status
	AttemptCount     int
	NextRetryAt      time.Time
	ErrorMessage     string
	ErrorDetails     json.RawMessage
	ResponsePayload  json.RawMessage
	ClaimedAt        *time.Time
	LastAttemptAt    *time.Time
	CompletedAt      *time.Time
	ArchivedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewQueueItem creates a pending item that is due immediately
func NewQueueItem(entityType, entityID string, op Operation, targetService, targetEntityType string, payload json.RawMessage) (*QueueItem, error) {
	if entityType == "" || entityID == "" {
		return nil, ErrMissingEntity
	}
	if !op.IsValid() {
		return nil, ErrInvalidOperation
	}
	if targetService == "" || targetEntityType == "" {
		return nil, ErrMissingTarget
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	now := time.Now().UTC()
	return &QueueItem{
		ID:               uuid.New(),
		EntityType:       entityType,
		EntityID:         entityID,
		Operation:        op,
		TargetService:    targetService,
		TargetEntityType: targetEntityType,
		RequestPayload:   payload,
		Status:           StatusPending,
		AttemptCount:     0,
		NextRetryAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// IsDue reports whether a worker may claim the item at now
func (q *QueueItem) IsDue(now time.Time) bool {
	return (q.Status == StatusPending || q.Status == StatusRetrying) && !q.NextRetryAt.After(now)
}

// Claim marks the item as held by a worker
func (q *QueueItem) Claim(now time.Time) {
	q.Status = StatusProcessing
	q.ClaimedAt = &now
	q.UpdatedAt = now
}

// MarkSucceeded records a successful attempt
func (q *QueueItem) MarkSucceeded(response json.RawMessage, now time.Time) {
	q.AttemptCount++
	q.Status = StatusSucceeded
	q.ResponsePayload = response
	q.ErrorMessage = ""
	q.ErrorDetails = nil
	q.ClaimedAt = nil
	q.LastAttemptAt = &now
	q.CompletedAt = &now
	q.UpdatedAt = now
}

// MarkFailed records a failed attempt and schedules the next one.
// The item becomes terminal once the policy's attempt budget is spent.
func (q *QueueItem) MarkFailed(errMsg string, details json.RawMessage, policy BackoffPolicy, now time.Time) {
	q.AttemptCount++
	q.ErrorMessage = errMsg
	q.ErrorDetails = details
	q.ClaimedAt = nil
	q.LastAttemptAt = &now
	q.UpdatedAt = now

	if policy.Exhausted(q.AttemptCount) {
		q.Status = StatusFailed
		q.CompletedAt = &now
		return
	}
	q.Status = StatusRetrying
	q.NextRetryAt = now.Add(policy.Delay(q.AttemptCount))
}

// CanRetry reports whether an operator may force a retry
func (q *QueueItem) CanRetry() bool {
	return q.Status.IsTerminal() || q.Status == StatusRetrying
}

// ResetForRetry makes the item due immediately with a fresh attempt budget
func (q *QueueItem) ResetForRetry(now time.Time) error {
	if !q.CanRetry() {
		return ErrNotRetryable
	}
	q.Status = StatusRetrying
	q.AttemptCount = 0
	q.NextRetryAt = now
	q.ErrorMessage = ""
	q.ErrorDetails = nil
	q.ClaimedAt = nil
	q.CompletedAt = nil
	q.ArchivedAt = nil
	q.UpdatedAt = now
	return nil
}
