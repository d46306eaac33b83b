package handler

import (
	"time"

	"approval-gateway/internal/adapter/http/dto"
	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// ApprovalHandler serves the pending list, history and decisions.
type ApprovalHandler struct {
	sync      ports.SyncService
	approvals ports.ApprovalReader
	now       func() time.Time
}

// NewApprovalHandler creates a new ApprovalHandler.
func NewApprovalHandler(sync ports.SyncService, approvals ports.ApprovalReader, now func() time.Time) *ApprovalHandler {
	if now == nil {
		now = time.Now
	}
	return &ApprovalHandler{sync: sync, approvals: approvals, now: now}
}

// ListPending handles GET /api/v1/approvals.
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	pending := h.approvals.Pending()
	response.OK(c, dto.ApprovalListResponse{
		Items: dto.NewActionList(pending, h.now()),
		Total: len(pending),
	})
}

// Get handles GET /api/v1/approvals/:id. Decided actions are served from history.
func (h *ApprovalHandler) Get(c *gin.Context) {
	var param dto.ActionIDParam
	if err := c.ShouldBindUri(&param); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	a, ok := h.approvals.Find(param.ID)
	if !ok {
		response.Error(c, apperror.ErrActionNotFound(param.ID))
		return
	}
	response.OK(c, dto.NewActionResponse(a, h.now()))
}

// Approve handles POST /api/v1/approvals/:id/approve.
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.decide(c, domain.StatusApproved)
}

// Reject handles POST /api/v1/approvals/:id/reject.
func (h *ApprovalHandler) Reject(c *gin.Context) {
	h.decide(c, domain.StatusRejected)
}

func (h *ApprovalHandler) decide(c *gin.Context, outcome domain.Status) {
	var param dto.ActionIDParam
	if err := c.ShouldBindUri(&param); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var (
		decided domain.ApprovalAction
		err     error
	)
	if outcome == domain.StatusApproved {
		decided, err = h.sync.Approve(c.Request.Context(), param.ID)
	} else {
		decided, err = h.sync.Reject(c.Request.Context(), param.ID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.DecisionResponse{
		ID:      decided.ID,
		Status:  decided.Status,
		Decided: true,
	})
}

// Refresh handles POST /api/v1/approvals/refresh.
func (h *ApprovalHandler) Refresh(c *gin.Context) {
	if err := h.sync.Refresh(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	pending := h.approvals.Pending()
	response.OK(c, dto.ApprovalListResponse{
		Items: dto.NewActionList(pending, h.now()),
		Total: len(pending),
	})
}

// ListHistory handles GET /api/v1/history, newest decision first.
func (h *ApprovalHandler) ListHistory(c *gin.Context) {
	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	history := h.approvals.History()
	total := len(history)
	if q.Limit > 0 && q.Limit < total {
		history = history[:q.Limit]
	}
	response.OK(c, dto.HistoryResponse{Items: history, Total: total})
}

// ClearHistory handles DELETE /api/v1/history.
func (h *ApprovalHandler) ClearHistory(c *gin.Context) {
	h.approvals.ClearHistory()
	response.OK(c, gin.H{"cleared": true})
}

// SyncStatus handles GET /api/v1/sync/status.
func (h *ApprovalHandler) SyncStatus(c *gin.Context) {
	snap := h.approvals.Snapshot()
	response.OK(c, dto.SyncStatusResponse{
		SyncStatus:   h.sync.Status(),
		PendingCount: len(snap.Pending),
		HistoryCount: len(snap.History),
	})
}
