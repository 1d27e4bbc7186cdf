package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appcrmsync "github.com/storefront/backend/internal/application/crmsync"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// SyncLogService backs the admin sync console
type SyncLogService interface {
	List(ctx context.Context, q appcrmsync.ListQuery) (*appcrmsync.SyncLogList, error)
	Retry(ctx context.Context, id uuid.UUID) (*appcrmsync.SyncLogDTO, error)
	Stats(ctx context.Context) (*appcrmsync.StatsDTO, error)
}

// SyncLogHandler serves the admin view of the CRM sync outbox
type SyncLogHandler struct {
	BaseHandler
	service SyncLogService
	logger  *zap.Logger
}

// NewSyncLogHandler creates a new SyncLogHandler
func NewSyncLogHandler(service SyncLogService, logger *zap.Logger) *SyncLogHandler {
	return &SyncLogHandler{service: service, logger: logger}
}

// List godoc
//
// The body is the bare page object {data, count, page, pageSize} that the
// console reads.
//
//	@ID				listSyncLogs
//	@Summary		List CRM sync log entries
//	@Description	Get a filtered, paginated page of CRM sync outbox items
//	@Tags			sync-logs
//	@Produce		json
//	@Param			page		query		int		false	"Page number"	default(1)
//	@Param			pageSize	query		int		false	"Items per page"	default(20)	maximum(100)
//	@Param			status		query		string	false	"Status filter"	Enums(pending, processing, succeeded, failed, retrying)
//	@Param			entityType	query		string	false	"Local entity type"
//	@Param			operation	query		string	false	"Operation"	Enums(create, update, delete)
//	@Param			search		query		string	false	"Entity id or error message"
//	@Param			sortBy		query		string	false	"Sort column"
//	@Param			sortOrder	query		string	false	"Sort order"	Enums(asc, desc)
//	@Success		200			{object}	appcrmsync.SyncLogList
//	@Failure		400			{object}	dto.Response
//	@Failure		401			{object}	dto.Response
//	@Failure		500			{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/admin/sync-logs [get]
func (h *SyncLogHandler) List(c *gin.Context) {
	var q dto.SyncLogListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, middleware.ValidationDetails(err))
		return
	}

	page, err := h.service.List(c.Request.Context(), appcrmsync.ListQuery{
		Page:       q.Page,
		PageSize:   q.PageSize,
		Status:     q.Status,
		EntityType: q.EntityType,
		Operation:  q.Operation,
		Search:     q.Search,
		SortBy:     q.SortBy,
		SortOrder:  q.SortOrder,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Action godoc
//
//	@ID				actionSyncLog
//	@Summary		Act on a CRM sync log entry
//	@Description	Reset a failed or succeeded entry for another attempt. "retry" is the only action.
//	@Tags			sync-logs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.SyncLogActionRequest	true	"Action request"
//	@Success		200		{object}	dto.Response
//	@Failure		400		{object}	dto.Response
//	@Failure		401		{object}	dto.Response
//	@Failure		404		{object}	dto.Response
//	@Failure		409		{object}	dto.Response
//	@Failure		422		{object}	dto.Response
//	@Failure		500		{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/admin/sync-logs [post]
func (h *SyncLogHandler) Action(c *gin.Context) {
	var req dto.SyncLogActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, middleware.ValidationDetails(err))
		return
	}
	id, err := uuid.Parse(req.LogID)
	if err != nil {
		h.BadRequest(c, "Invalid log id")
		return
	}

	item, err := h.service.Retry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.logger.Info("Sync log retry requested",
		zap.String("id", id.String()),
		zap.String("operator", middleware.GetAdminSubject(c)),
		zap.String("zoho_entity_type", item.ZohoEntityType),
	)
	h.Message(c, "Sync log queued for retry")
}

// Stats godoc
//
//	@ID				getSyncLogStats
//	@Summary		Get CRM sync statistics
//	@Description	Count CRM sync outbox items per status
//	@Tags			sync-logs
//	@Produce		json
//	@Success		200	{object}	dto.Response{data=appcrmsync.StatsDTO}
//	@Failure		401	{object}	dto.Response
//	@Failure		500	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/admin/sync-logs/stats [get]
func (h *SyncLogHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
