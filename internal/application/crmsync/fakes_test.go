package crmsync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/domain/order"
)

// memQueueRepo is an in-memory crmsync.Repository
type memQueueRepo struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*crmsync.QueueItem
	createErr error
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{items: make(map[uuid.UUID]*crmsync.QueueItem)}
}

func (r *memQueueRepo) Create(_ context.Context, item *crmsync.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *memQueueRepo) FindByID(_ context.Context, id uuid.UUID) (*crmsync.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, crmsync.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *memQueueRepo) ClaimDue(_ context.Context, now time.Time, limit int, staleAfter time.Duration) ([]*crmsync.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*crmsync.QueueItem
	for _, item := range r.items {
		stale := staleAfter > 0 && item.Status == crmsync.StatusProcessing &&
			item.ClaimedAt != nil && item.ClaimedAt.Before(now.Add(-staleAfter))
		if item.IsDue(now) || stale {
			due = append(due, item)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*crmsync.QueueItem, len(due))
	for i, item := range due {
		item.Claim(now)
		cp := *item
		out[i] = &cp
	}
	return out, nil
}

func (r *memQueueRepo) Update(_ context.Context, item *crmsync.QueueItem, expected crmsync.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[item.ID]
	if !ok {
		return crmsync.ErrItemNotFound
	}
	if stored.Status != expected {
		return crmsync.ErrConcurrentUpdate
	}
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *memQueueRepo) UpdateClaimed(_ context.Context, item *crmsync.QueueItem, claimedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[item.ID]
	if !ok {
		return crmsync.ErrItemNotFound
	}
	if stored.Status != crmsync.StatusProcessing || stored.ClaimedAt == nil || !stored.ClaimedAt.Equal(claimedAt) {
		return crmsync.ErrConcurrentUpdate
	}
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *memQueueRepo) List(_ context.Context, f crmsync.ListFilter) ([]*crmsync.QueueItem, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*crmsync.QueueItem
	for _, item := range r.items {
		if f.Status != "" && item.Status != f.Status {
			continue
		}
		if f.EntityType != "" && item.EntityType != f.EntityType {
			continue
		}
		if f.Operation != "" && item.Operation != f.Operation {
			continue
		}
		if f.Search != "" {
			s := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(item.ErrorMessage), s) && !strings.Contains(strings.ToLower(item.EntityID), s) {
				continue
			}
		}
		cp := *item
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := (f.Page - 1) * f.PageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := min(start+f.PageSize, len(matched))
	return matched[start:end], total, nil
}

func (r *memQueueRepo) CountByStatus(_ context.Context) (map[crmsync.Status]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[crmsync.Status]int64{}
	for _, item := range r.items {
		counts[item.Status]++
	}
	return counts, nil
}

func (r *memQueueRepo) ListArchivable(_ context.Context, cutoff time.Time, limit int) ([]*crmsync.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*crmsync.QueueItem
	for _, item := range r.items {
		if item.Status == crmsync.StatusSucceeded && item.ArchivedAt == nil &&
			item.CompletedAt != nil && item.CompletedAt.Before(cutoff) {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(*out[j].CompletedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memQueueRepo) MarkArchived(_ context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if item, ok := r.items[id]; ok && item.Status == crmsync.StatusSucceeded && item.ArchivedAt == nil {
			stamp := at
			item.ArchivedAt = &stamp
			n++
		}
	}
	return n, nil
}

func (r *memQueueRepo) all() []*crmsync.QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*crmsync.QueueItem, 0, len(r.items))
	for _, item := range r.items {
		cp := *item
		out = append(out, &cp)
	}
	return out
}

// put stores an item as-is, bypassing Create
func (r *memQueueRepo) put(item *crmsync.QueueItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.ID] = &cp
}

// mockOrderRepo is a testify mock of order.Repository
type mockOrderRepo struct {
	mock.Mock
}

func (m *mockOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if o := args.Get(0); o != nil {
		return o.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderRepo) MarkPaymentFailed(ctx context.Context, id uuid.UUID, paymentID string) (bool, error) {
	args := m.Called(ctx, id, paymentID)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepo) FlagForReview(ctx context.Context, id uuid.UUID, reason, paymentID string) error {
	args := m.Called(ctx, id, reason, paymentID)
	return args.Error(0)
}

func newTestItem(entityID string) *crmsync.QueueItem {
	item, err := crmsync.NewQueueItem("user", entityID, crmsync.OperationCreate, crmsync.TargetZohoCRM,
		crmsync.EntityContacts, []byte(`{"last_name":"Rao","email":"a@example.com"}`))
	if err != nil {
		panic(err)
	}
	return item
}
