package crmsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/crmsync"
)

const (
	defaultArchiveBatch  = 500
	archiveContentType   = "application/x-ndjson"
	defaultArchivePrefix = "crm-sync"
)

// ErrInvalidRetention is returned for a non-positive retention window
var ErrInvalidRetention = errors.New("archive retention must be positive")

// ArchiveStore receives archived sync log objects
type ArchiveStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// ArchiveReport summarises one Archive run
type ArchiveReport struct {
	Cutoff   time.Time `json:"cutoff"`
	Archived int64     `json:"archived"`
	Objects  []string  `json:"objects"`
}

// ArchiveService exports succeeded sync log entries to object storage. Rows
// stay in the database as the audit trail; each batch is uploaded as one
// NDJSON object before its rows are stamped archived, so a crash between the
// two steps only duplicates an object.
type ArchiveService struct {
	repo      crmsync.ArchiveRepository
	store     ArchiveStore
	prefix    string
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// NewArchiveService creates an ArchiveService. Empty prefix and batchSize use defaults.
func NewArchiveService(repo crmsync.ArchiveRepository, store ArchiveStore, prefix string, batchSize int, logger *zap.Logger) *ArchiveService {
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	if batchSize <= 0 {
		batchSize = defaultArchiveBatch
	}
	return &ArchiveService{
		repo:      repo,
		store:     store,
		prefix:    prefix,
		batchSize: batchSize,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Archive exports entries that succeeded more than retain ago and were not exported before
func (s *ArchiveService) Archive(ctx context.Context, retain time.Duration) (*ArchiveReport, error) {
	if retain <= 0 {
		return nil, ErrInvalidRetention
	}
	started := s.now()
	report := &ArchiveReport{Cutoff: started.Add(-retain), Objects: []string{}}

	for seq := 1; ; seq++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		items, err := s.repo.ListArchivable(ctx, report.Cutoff, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("list archivable sync logs: %w", err)
		}
		if len(items) == 0 {
			break
		}

		body, ids, err := encodeArchive(items)
		if err != nil {
			return report, err
		}
		key := s.objectKey(started, seq)
		if err := s.store.Upload(ctx, key, body, archiveContentType); err != nil {
			return report, fmt.Errorf("upload %s: %w", key, err)
		}
		report.Objects = append(report.Objects, key)

		marked, err := s.repo.MarkArchived(ctx, ids, started)
		if err != nil {
			return report, fmt.Errorf("mark sync logs archived: %w", err)
		}
		report.Archived += marked
		s.logger.Info("Sync log batch archived",
			zap.String("object", key),
			zap.Int("exported", len(items)),
			zap.Int64("marked", marked),
		)

		// Nothing was marked, so the next listing would return the same rows.
		if marked == 0 || len(items) < s.batchSize {
			break
		}
	}

	s.logger.Info("Sync log archive finished",
		zap.Time("cutoff", report.Cutoff),
		zap.Int64("archived", report.Archived),
		zap.Int("objects", len(report.Objects)),
	)
	return report, nil
}

func (s *ArchiveService) objectKey(started time.Time, seq int) string {
	return path.Join(s.prefix, started.Format("2006/01/02"),
		fmt.Sprintf("%s-%04d.ndjson", started.Format("150405"), seq))
}

func encodeArchive(items []*crmsync.QueueItem) ([]byte, []uuid.UUID, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		if err := enc.Encode(toSyncLogDTO(item)); err != nil {
			return nil, nil, fmt.Errorf("encode sync log %s: %w", item.ID, err)
		}
		ids[i] = item.ID
	}
	return buf.Bytes(), ids, nil
}
