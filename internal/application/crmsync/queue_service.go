package crmsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/crmsync"
)

const asyncEnqueueTimeout = 5 * time.Second

// EnqueueRequest describes a local change that must be mirrored to the CRM.
// The target entity type comes from the payload.
type EnqueueRequest struct {
	EntityType    string
	EntityID      string
	Operation     crmsync.Operation
	TargetService string
	Payload       crmsync.Payload
}

// QueueService is the application API of the sync outbox
type QueueService struct {
	repo       crmsync.Repository
	policy     crmsync.BackoffPolicy
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time

	pending sync.WaitGroup
}

// NewQueueService creates a new QueueService. Items left in processing for
// longer than staleAfter are reclaimed by ClaimDue; zero disables reclaiming.
func NewQueueService(repo crmsync.Repository, policy crmsync.BackoffPolicy, staleAfter time.Duration, logger *zap.Logger) *QueueService {
	return &QueueService{
		repo:       repo,
		policy:     policy.Normalize(),
		staleAfter: staleAfter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the retry policy applied by MarkFailed
func (s *QueueService) Policy() crmsync.BackoffPolicy {
	return s.policy
}

func (s *QueueService) newItem(req EnqueueRequest) (*crmsync.QueueItem, error) {
	if req.Payload == nil {
		return nil, crmsync.ErrMissingTarget
	}
	payload, err := crmsync.EncodePayload(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode sync payload: %w", err)
	}
	return crmsync.NewQueueItem(req.EntityType, req.EntityID, req.Operation, req.TargetService, req.Payload.TargetEntityType(), payload)
}

// Enqueue inserts a pending item that is due immediately and returns its id
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (uuid.UUID, error) {
	return s.enqueueWith(ctx, s.repo, req)
}

// EnqueueTx inserts the item through the repositories of an open transaction,
// so it commits or rolls back together with the caller's writes.
func (s *QueueService) EnqueueTx(ctx context.Context, repos TransactionalRepositories, req EnqueueRequest) (uuid.UUID, error) {
	return s.enqueueWith(ctx, repos.SyncQueue(), req)
}

func (s *QueueService) enqueueWith(ctx context.Context, repo crmsync.Repository, req EnqueueRequest) (uuid.UUID, error) {
	item, err := s.newItem(req)
	if err != nil {
		return uuid.Nil, err
	}
	if err := repo.Create(ctx, item); err != nil {
		return uuid.Nil, fmt.Errorf("insert sync queue item: %w", err)
	}
	s.logger.Debug("Sync item enqueued",
		zap.String("id", item.ID.String()),
		zap.String("entity_type", item.EntityType),
		zap.String("entity_id", item.EntityID),
		zap.String("target_entity_type", item.TargetEntityType),
	)
	return item.ID, nil
}

// EnqueueAsync enqueues in the background. The caller never sees a failure:
// it is logged and the sync event is lost. The insert outlives ctx's
// cancellation but not asyncEnqueueTimeout.
func (s *QueueService) EnqueueAsync(ctx context.Context, req EnqueueRequest) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), asyncEnqueueTimeout)
		defer cancel()

		if _, err := s.Enqueue(ctx, req); err != nil {
			s.logger.Error("Failed to enqueue CRM sync, event dropped",
				zap.String("entity_type", req.EntityType),
				zap.String("entity_id", req.EntityID),
				zap.String("operation", string(req.Operation)),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every EnqueueAsync call has finished
func (s *QueueService) Wait() {
	s.pending.Wait()
}

// ClaimDue moves up to limit due items to processing and returns them
func (s *QueueService) ClaimDue(ctx context.Context, limit int) ([]*crmsync.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := s.repo.ClaimDue(ctx, s.now(), limit, s.staleAfter)
	if err != nil {
		return nil, fmt.Errorf("claim due sync items: %w", err)
	}
	return items, nil
}

// MarkSucceeded records a successful CRM write for an item returned by ClaimDue
func (s *QueueService) MarkSucceeded(ctx context.Context, claim *crmsync.QueueItem, response json.RawMessage) (*crmsync.QueueItem, error) {
	item, claimedAt, err := held(claim)
	if err != nil {
		return nil, err
	}
	item.MarkSucceeded(response, s.now())
	if err := s.repo.UpdateClaimed(ctx, item, claimedAt); err != nil {
		return nil, err
	}
	return item, nil
}

// MarkFailed records a failed CRM write for an item returned by ClaimDue and
// schedules the next attempt, or makes the item terminal once the attempt
// budget is spent.
func (s *QueueService) MarkFailed(ctx context.Context, claim *crmsync.QueueItem, errMsg string, details json.RawMessage) (*crmsync.QueueItem, error) {
	item, claimedAt, err := held(claim)
	if err != nil {
		return nil, err
	}
	item.MarkFailed(errMsg, details, s.policy, s.now())
	if err := s.repo.UpdateClaimed(ctx, item, claimedAt); err != nil {
		return nil, err
	}
	if item.Status == crmsync.StatusFailed {
		s.logger.Warn("Sync item exhausted its retries",
			zap.String("id", item.ID.String()),
			zap.String("target_entity_type", item.TargetEntityType),
			zap.Int("attempts", item.AttemptCount),
			zap.String("error", errMsg),
		)
	}
	return item, nil
}

// held copies a claimed item and returns the claim time that guards its
// completion. An item reset by an operator or reclaimed as stale is no
// longer ours to complete; the repository rejects it on that claim time.
func held(claim *crmsync.QueueItem) (*crmsync.QueueItem, time.Time, error) {
	if claim == nil || claim.Status != crmsync.StatusProcessing || claim.ClaimedAt == nil {
		return nil, time.Time{}, crmsync.ErrConcurrentUpdate
	}
	item := *claim
	return &item, *claim.ClaimedAt, nil
}

// Stats returns the number of items per status
func (s *QueueService) Stats(ctx context.Context) (*StatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sync items: %w", err)
	}
	return toStatsDTO(counts), nil
}
