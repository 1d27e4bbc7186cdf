package crmsync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/crmsync"
	"github.com/storefront/backend/internal/domain/shared"
)

// Errors returned by the admin console
var (
	ErrInvalidStatusFilter    = shared.NewDomainError("INVALID_STATUS", "Unknown sync log status")
	ErrInvalidOperationFilter = shared.NewDomainError("INVALID_OPERATION", "Unknown sync log operation")
)

// ListQuery filters the sync log listing
type ListQuery struct {
	Page       int
	PageSize   int
	Status     string
	EntityType string
	Operation  string
	Search     string
	SortBy     string
	SortOrder  string
}

// AdminService backs the admin sync console
type AdminService struct {
	repo   crmsync.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewAdminService creates a new AdminService
func NewAdminService(repo crmsync.Repository, logger *zap.Logger) *AdminService {
	return &AdminService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns one page of sync log entries, newest first unless a sort is given
func (s *AdminService) List(ctx context.Context, q ListQuery) (*SyncLogList, error) {
	filter := crmsync.ListFilter{
		EntityType: strings.TrimSpace(q.EntityType),
		Search:     strings.TrimSpace(q.Search),
		SortBy:     strings.TrimSpace(q.SortBy),
		SortOrder:  strings.TrimSpace(q.SortOrder),
	}
	if q.Status != "" {
		filter.Status = crmsync.Status(strings.ToLower(q.Status))
		if !filter.Status.IsValid() {
			return nil, ErrInvalidStatusFilter
		}
	}
	if q.Operation != "" {
		filter.Operation = crmsync.Operation(strings.ToLower(q.Operation))
		if !filter.Operation.IsValid() {
			return nil, ErrInvalidOperationFilter
		}
	}
	filter.Page, filter.PageSize = shared.NormalizePage(q.Page, q.PageSize)

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list sync logs", zap.Error(err))
		return nil, err
	}

	data := make([]SyncLogDTO, len(items))
	for i, item := range items {
		data[i] = toSyncLogDTO(item)
	}
	return &SyncLogList{
		Data:     data,
		Count:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// Retry makes a terminal or retrying entry due immediately with a fresh
// attempt budget. Pending and processing entries are rejected.
func (s *AdminService) Retry(ctx context.Context, id uuid.UUID) (*SyncLogDTO, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := item.Status
	if err := item.ResetForRetry(s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, item, previous); err != nil {
		if !errors.Is(err, crmsync.ErrConcurrentUpdate) {
			s.logger.Error("Failed to reset sync log for retry", zap.String("id", id.String()), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("Sync log reset for retry",
		zap.String("id", id.String()),
		zap.String("previous_status", string(previous)),
		zap.String("target_entity_type", item.TargetEntityType),
	)
	dto := toSyncLogDTO(item)
	return &dto, nil
}

// Stats returns the number of entries per status
func (s *AdminService) Stats(ctx context.Context) (*StatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("Failed to count sync logs", zap.Error(err))
		return nil, err
	}
	return toStatsDTO(counts), nil
}
