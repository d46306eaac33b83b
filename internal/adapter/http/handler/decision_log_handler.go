package handler

import (
	"approval-gateway/internal/adapter/http/dto"
	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

const defaultDecisionLogLimit = 50

// DecisionLogHandler reads the decision audit log.
type DecisionLogHandler struct {
	repo ports.DecisionLogRepository
}

// NewDecisionLogHandler creates a new DecisionLogHandler.
func NewDecisionLogHandler(repo ports.DecisionLogRepository) *DecisionLogHandler {
	return &DecisionLogHandler{repo: repo}
}

// List handles GET /api/v1/decisions?action_id=&limit=.
func (h *DecisionLogHandler) List(c *gin.Context) {
	var q dto.DecisionLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var (
		records []domain.DecisionRecord
		err     error
	)
	if q.ActionID != "" {
		records, err = h.repo.ListByAction(c.Request.Context(), q.ActionID)
	} else {
		limit := q.Limit
		if limit == 0 {
			limit = defaultDecisionLogLimit
		}
		records, err = h.repo.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		response.Error(c, apperror.ErrStorage(err))
		return
	}
	if records == nil {
		records = []domain.DecisionRecord{}
	}
	response.OK(c, dto.DecisionLogResponse{Items: records})
}
