package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormSyncQueueRepository implements crmsync.Repository using GORM
type GormSyncQueueRepository struct {
	db *gorm.DB
}

// NewGormSyncQueueRepository creates a new GormSyncQueueRepository
func NewGormSyncQueueRepository(db *gorm.DB) *GormSyncQueueRepository {
	return &GormSyncQueueRepository{db: db}
}

// Create inserts a new queue item
func (r *GormSyncQueueRepository) Create(ctx context.Context, item *crmsync.QueueItem) error {
	m := models.SyncQueueItemModelFromDomain(item)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	item.CreatedAt = m.CreatedAt
	item.UpdatedAt = m.UpdatedAt
	return nil
}

// FindByID finds a queue item by its ID
func (r *GormSyncQueueRepository) FindByID(ctx context.Context, id uuid.UUID) (*crmsync.QueueItem, error) {
	var m models.SyncQueueItemModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, crmsync.ErrItemNotFound
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// ClaimDue selects due rows with FOR UPDATE SKIP LOCKED and flips them to
// processing in the same transaction. The update repeats the due predicate
// so a row claimed elsewhere between select and update is left alone.
func (r *GormSyncQueueRepository) ClaimDue(ctx context.Context, now time.Time, limit int, staleAfter time.Duration) ([]*crmsync.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = now.UTC().Truncate(time.Microsecond)

	var claimed []*crmsync.QueueItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []models.SyncQueueItemModel
		if err := dueScope(tx, now, staleAfter).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Order("next_retry_at ASC").
			Limit(limit).
			Find(&candidates).Error; err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(candidates))
		for i := range candidates {
			ids[i] = candidates[i].ID
		}

		result := dueScope(tx.Model(&models.SyncQueueItemModel{}), now, staleAfter).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     crmsync.StatusProcessing,
				"claimed_at": now,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}

		var rows []models.SyncQueueItemModel
		if err := tx.Where("id IN ? AND status = ? AND claimed_at = ?", ids, crmsync.StatusProcessing, now).
			Order("next_retry_at ASC").
			Find(&rows).Error; err != nil {
			return err
		}
		claimed = make([]*crmsync.QueueItem, len(rows))
		for i := range rows {
			claimed[i] = rows[i].ToDomain()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// dueScope restricts a query to rows a worker may claim at now
func dueScope(db *gorm.DB, now time.Time, staleAfter time.Duration) *gorm.DB {
	ready := []crmsync.Status{crmsync.StatusPending, crmsync.StatusRetrying}
	if staleAfter <= 0 {
		return db.Where("status IN ? AND next_retry_at <= ?", ready, now)
	}
	return db.Where("((status IN ? AND next_retry_at <= ?) OR (status = ? AND claimed_at < ?))",
		ready, now, crmsync.StatusProcessing, now.Add(-staleAfter))
}

// Update writes the mutable fields when the stored status still equals expected
func (r *GormSyncQueueRepository) Update(ctx context.Context, item *crmsync.QueueItem, expected crmsync.Status) error {
	return r.update(ctx, item, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ? AND status = ?", item.ID, expected)
	})
}

// UpdateClaimed writes the mutable fields while the row is still held by the
// claim taken at claimedAt
func (r *GormSyncQueueRepository) UpdateClaimed(ctx context.Context, item *crmsync.QueueItem, claimedAt time.Time) error {
	return r.update(ctx, item, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ? AND status = ? AND claimed_at = ?", item.ID, crmsync.StatusProcessing, claimedAt)
	})
}

func (r *GormSyncQueueRepository) update(ctx context.Context, item *crmsync.QueueItem, guard func(*gorm.DB) *gorm.DB) error {
	m := models.SyncQueueItemModelFromDomain(item)
	result := guard(r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{})).
		Updates(map[string]any{
			"status":           m.Status,
			"attempt_count":    m.AttemptCount,
			"next_retry_at":    m.NextRetryAt,
			"error_message":    m.ErrorMessage,
			"error_details":    m.ErrorDetails,
			"response_payload": m.ResponsePayload,
			"claimed_at":       m.ClaimedAt,
			"last_attempt_at":  m.LastAttemptAt,
			"completed_at":     m.CompletedAt,
			"archived_at":      m.ArchivedAt,
			"updated_at":       item.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{}).Where("id = ?", item.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return crmsync.ErrItemNotFound
		}
		return crmsync.ErrConcurrentUpdate
	}
	return nil
}

// List returns a filtered page of queue items, newest first by default
func (r *GormSyncQueueRepository) List(ctx context.Context, filter crmsync.ListFilter) ([]*crmsync.QueueItem, int64, error) {
	page, pageSize := shared.NormalizePage(filter.Page, filter.PageSize)

	var total int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.SyncQueueItemModel{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SyncQueueItemModel
	if err := r.applyFilter(r.db.WithContext(ctx), filter).
		Order(syncLogOrder(filter.SortBy, filter.SortOrder)).
		Order("id DESC").
		Offset(shared.Offset(page, pageSize)).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	items := make([]*crmsync.QueueItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items, total, nil
}

func (r *GormSyncQueueRepository) applyFilter(q *gorm.DB, filter crmsync.ListFilter) *gorm.DB {
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", filter.EntityType)
	}
	if filter.Operation != "" {
		q = q.Where("operation = ?", filter.Operation)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(error_message) LIKE ? OR LOWER(entity_id) LIKE ?)", like, like)
	}
	return q
}

// CountByStatus returns item counts grouped by status. Statuses without rows report zero.
func (r *GormSyncQueueRepository) CountByStatus(ctx context.Context) (map[crmsync.Status]int64, error) {
	var rows []struct {
		Status crmsync.Status
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SyncQueueItemModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[crmsync.Status]int64, len(crmsync.AllStatuses))
	for _, s := range crmsync.AllStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ListArchivable returns unarchived succeeded items completed before cutoff, oldest first
func (r *GormSyncQueueRepository) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]*crmsync.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []models.SyncQueueItemModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND completed_at < ? AND archived_at IS NULL", crmsync.StatusSucceeded, cutoff.UTC()).
		Order("completed_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]*crmsync.QueueItem, len(rows))
	for i := range rows {
		items[i] = rows[i].ToDomain()
	}
	return items, nil
}

// MarkArchived sets archived_at on the listed items. Items retried since
// they were listed are left alone.
func (r *GormSyncQueueRepository) MarkArchived(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.SyncQueueItemModel{}).
		Where("id IN ? AND status = ? AND archived_at IS NULL", ids, crmsync.StatusSucceeded).
		Updates(map[string]any{"archived_at": at.UTC()})
	return result.RowsAffected, result.Error
}

var (
	_ crmsync.Repository        = (*GormSyncQueueRepository)(nil)
	_ crmsync.ArchiveRepository = (*GormSyncQueueRepository)(nil)
)
