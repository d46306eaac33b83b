package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"approval-gateway/internal/adapter/http/dto"
	"approval-gateway/internal/core/ports"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationHandler is the push payload ingress.
type NotificationHandler struct {
	decoder ports.NotificationService
	now     func() time.Time
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(decoder ports.NotificationService, now func() time.Time) *NotificationHandler {
	if now == nil {
		now = time.Now
	}
	return &NotificationHandler{decoder: decoder, now: now}
}

// Receive handles POST /api/v1/notifications. The raw body is handed to
// the decoder unchanged; a decoded action is inserted as pending.
func (h *NotificationHandler) Receive(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, apperror.New(apperror.CodeValidation, "Payload too large", http.StatusRequestEntityTooLarge))
			return
		}
		response.Error(c, apperror.Validation("unreadable body"))
		return
	}

	action, err := h.decoder.Decode(raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.NewActionResponse(action, h.now()))
}
