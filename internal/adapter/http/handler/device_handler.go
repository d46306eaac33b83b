package handler

import (
	"errors"
	"io"

	"approval-gateway/internal/adapter/http/dto"
	"approval-gateway/internal/core/ports"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/logger"
	"approval-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// DeviceHandler exposes the device identity.
type DeviceHandler struct {
	device ports.DeviceService
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(device ports.DeviceService) *DeviceHandler {
	return &DeviceHandler{device: device}
}

// Get handles GET /api/v1/device.
func (h *DeviceHandler) Get(c *gin.Context) {
	id := h.device.Identity()
	if id.Token == "" {
		response.Error(c, apperror.ErrNoDeviceToken())
		return
	}
	response.OK(c, dto.DeviceResponse{
		TokenPrefix:  logger.RedactToken(id.Token),
		Registered:   id.Registered,
		RegisteredAt: id.RegisteredAt,
		HasPushToken: id.PushToken != "",
	})
}

// Register handles POST /api/v1/device/register. The body is optional; a
// push token in it replaces the configured one before re-registering.
func (h *DeviceHandler) Register(c *gin.Context) {
	var req dto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	if h.device.Token() == "" {
		response.Error(c, apperror.ErrNoDeviceToken())
		return
	}
	if req.PushToken != "" {
		h.device.SetPushToken(req.PushToken)
	}

	response.OK(c, dto.RegisterDeviceResponse{
		Registered: h.device.ReRegister(c.Request.Context()),
	})
}
