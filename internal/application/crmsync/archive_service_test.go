package crmsync

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/crmsync"
)

type mockArchiveStore struct {
	mock.Mock
}

func (m *mockArchiveStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

func putSucceeded(repo *memQueueRepo, entityID string, completed time.Time) *crmsync.QueueItem {
	item := newTestItem(entityID)
	item.Status = crmsync.StatusSucceeded
	item.CompletedAt = &completed
	repo.put(item)
	return item
}

func countLines(t *testing.T, data []byte) int {
	t.Helper()
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var row SyncLogDTO
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		assert.Equal(t, "succeeded", row.Status)
		n++
	}
	return n
}

func TestArchiveService_Archive(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	t.Run("exports old succeeded items in batches and keeps the rows", func(t *testing.T) {
		repo := newMemQueueRepo()
		for i := range 5 {
			putSucceeded(repo, fmt.Sprintf("old-%d", i), now.Add(-48*time.Hour-time.Duration(i)*time.Minute))
		}
		recent := putSucceeded(repo, "recent", now.Add(-time.Hour))
		failed := newTestItem("failed")
		failed.Status = crmsync.StatusFailed
		repo.put(failed)

		store := &mockArchiveStore{}
		var lines int
		store.On("Upload", mock.Anything, mock.AnythingOfType("string"), mock.Anything, "application/x-ndjson").
			Run(func(args mock.Arguments) { lines += countLines(t, args.Get(2).([]byte)) }).
			Return(nil)

		svc := NewArchiveService(repo, store, "", 2, zap.NewNop())
		svc.now = func() time.Time { return now }

		report, err := svc.Archive(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(5), report.Archived)
		assert.Equal(t, []string{
			"crm-sync/2026/03/04/050607-0001.ndjson",
			"crm-sync/2026/03/04/050607-0002.ndjson",
			"crm-sync/2026/03/04/050607-0003.ndjson",
		}, report.Objects)
		assert.Equal(t, 5, lines)
		assert.Equal(t, now.Add(-24*time.Hour), report.Cutoff)

		rows := repo.all()
		require.Len(t, rows, 7)
		for _, row := range rows {
			switch row.ID {
			case recent.ID, failed.ID:
				assert.Nil(t, row.ArchivedAt, row.EntityID)
			default:
				require.NotNil(t, row.ArchivedAt, row.EntityID)
				assert.Equal(t, now, *row.ArchivedAt)
			}
		}

		again, err := svc.Archive(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Zero(t, again.Archived)
		assert.Empty(t, again.Objects)
		store.AssertNumberOfCalls(t, "Upload", 3)
	})

	t.Run("nothing to archive", func(t *testing.T) {
		repo := newMemQueueRepo()
		putSucceeded(repo, "recent", now.Add(-time.Hour))
		store := &mockArchiveStore{}

		svc := NewArchiveService(repo, store, "archive", 10, zap.NewNop())
		svc.now = func() time.Time { return now }

		report, err := svc.Archive(ctx, 24*time.Hour)
		require.NoError(t, err)
		assert.Zero(t, report.Archived)
		assert.Empty(t, report.Objects)
		store.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("upload failure leaves rows unarchived", func(t *testing.T) {
		repo := newMemQueueRepo()
		putSucceeded(repo, "old", now.Add(-72*time.Hour))
		store := &mockArchiveStore{}
		store.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket gone"))

		svc := NewArchiveService(repo, store, "", 10, zap.NewNop())
		svc.now = func() time.Time { return now }

		_, err := svc.Archive(ctx, 24*time.Hour)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket gone")
		rows := repo.all()
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0].ArchivedAt)
	})

	t.Run("rejects non-positive retention", func(t *testing.T) {
		svc := NewArchiveService(newMemQueueRepo(), &mockArchiveStore{}, "", 0, zap.NewNop())
		_, err := svc.Archive(ctx, 0)
		assert.ErrorIs(t, err, ErrInvalidRetention)
	})
}
