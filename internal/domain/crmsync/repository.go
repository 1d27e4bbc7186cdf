package crmsync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter selects queue items for the admin console. SortBy names a
// column; unknown columns fall back to created_at.
type ListFilter struct {
	Status     Status
	EntityType string
	Operation  Operation
	Search     string
	SortBy     string
	SortOrder  string
	Page       int
	PageSize   int
}

// Repository persists sync queue items
type Repository interface {
	// Create inserts a new item
	Create(ctx context.Context, item *QueueItem) error

	// FindByID returns ErrItemNotFound when the item does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*QueueItem, error)

	// ClaimDue atomically moves up to limit due items to processing and returns them.
	// Items stuck in processing with a claim older than staleAfter are reclaimed.
	// Concurrent callers never receive the same item.
	ClaimDue(ctx context.Context, now time.Time, limit int, staleAfter time.Duration) ([]*QueueItem, error)

	// Update persists the mutable fields of an item only if its stored status
	// still equals expected. Returns ErrConcurrentUpdate otherwise.
	Update(ctx context.Context, item *QueueItem, expected Status) error

	// UpdateClaimed persists the item only while the claim taken at claimedAt
	// is still current: the stored row is processing with that same
	// claimed_at. A worker whose stale claim was taken over gets
	// ErrConcurrentUpdate.
	UpdateClaimed(ctx context.Context, item *QueueItem, claimedAt time.Time) error

	// List returns a page of items and the total match count. Without a
	// sort the newest items come first.
	List(ctx context.Context, filter ListFilter) ([]*QueueItem, int64, error)

	// CountByStatus returns the number of items per status
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// ArchiveRepository reads succeeded items for export to long-term storage.
// Exported rows stay in the table with archived_at set.
type ArchiveRepository interface {
	// ListArchivable returns up to limit unarchived succeeded items completed before cutoff, oldest first
	ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]*QueueItem, error)

	// MarkArchived stamps archived_at on the given items that are still succeeded and unarchived
	MarkArchived(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error)
}
