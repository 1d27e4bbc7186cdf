//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/infrastructure/persistence"
)

func enqueue(t *testing.T, repo *persistence.GormSyncQueueRepository, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, n)
	for i := range n {
		item, err := crmsync.NewQueueItem("user", fmt.Sprintf("user-%d", i), crmsync.OperationCreate,
			crmsync.TargetZohoCRM, "Leads", json.RawMessage(`{"Email":"a@example.com"}`))
		require.NoError(t, err)
		require.NoError(t, repo.Create(context.Background(), item))
		ids[i] = item.ID
	}
	return ids
}

func TestSyncQueue_ConcurrentClaimsAreDisjoint(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormSyncQueueRepository(tdb.DB)
	ids := enqueue(t, repo, 40)

	const workers = 6
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		seen  = map[uuid.UUID]int{}
		fails []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				items, err := repo.ClaimDue(context.Background(), time.Now().Add(time.Second), 3, time.Minute)
				mu.Lock()
				if err != nil {
					fails = append(fails, err)
				}
				for _, it := range items {
					seen[it.ID]++
				}
				mu.Unlock()
				if err != nil || len(items) == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Empty(t, fails)
	assert.Len(t, seen, len(ids))
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %s claimed more than once", id)
	}

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(ids)), counts[crmsync.StatusProcessing])
}

func TestSyncQueue_StaleClaimIsReclaimed(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormSyncQueueRepository(tdb.DB)
	ctx := context.Background()
	enqueue(t, repo, 1)

	start := time.Now().Add(time.Second)
	first, err := repo.ClaimDue(ctx, start, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := repo.ClaimDue(ctx, start.Add(30*time.Second), 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	reclaimed, err := repo.ClaimDue(ctx, start.Add(2*time.Minute), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, first[0].ID, reclaimed[0].ID)
}

func TestSyncQueue_UpdateRequiresExpectedStatus(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormSyncQueueRepository(tdb.DB)
	ctx := context.Background()
	enqueue(t, repo, 1)

	claimed, err := repo.ClaimDue(ctx, time.Now().Add(time.Second), 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	item := claimed[0]

	item.MarkSucceeded(json.RawMessage(`{"id":"zoho-1"}`), time.Now())
	require.NoError(t, repo.Update(ctx, item, crmsync.StatusProcessing))

	// A second writer still believing the item is processing loses.
	item.MarkFailed("late failure", nil, crmsync.BackoffPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 3}, time.Now())
	assert.ErrorIs(t, repo.Update(ctx, item, crmsync.StatusProcessing), crmsync.ErrConcurrentUpdate)

	stored, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, crmsync.StatusSucceeded, stored.Status)
}

func TestSyncQueue_SupersededClaimCannotComplete(t *testing.T) {
	tdb := NewTestDB(t)
	repo := persistence.NewGormSyncQueueRepository(tdb.DB)
	ctx := context.Background()
	enqueue(t, repo, 1)

	start := time.Now().Add(time.Second)
	first, err := repo.ClaimDue(ctx, start, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := repo.ClaimDue(ctx, start.Add(time.Hour), 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, second, 1)

	late := *first[0]
	late.MarkSucceeded(json.RawMessage(`{"id":"late"}`), time.Now())
	assert.ErrorIs(t, repo.UpdateClaimed(ctx, &late, *first[0].ClaimedAt), crmsync.ErrConcurrentUpdate)

	current := *second[0]
	current.MarkSucceeded(json.RawMessage(`{"id":"zoho-2"}`), time.Now())
	require.NoError(t, repo.UpdateClaimed(ctx, &current, *second[0].ClaimedAt))

	stored, err := repo.FindByID(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, crmsync.StatusSucceeded, stored.Status)
	assert.JSONEq(t, `{"id":"zoho-2"}`, string(stored.ResponsePayload))
}
