package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"approval-gateway/internal/core/ports"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/logger"
	"approval-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderDeviceToken = "X-Device-Token"
	HeaderRequestID   = "X-Request-ID"

	// CtxDeviceToken holds the authenticated device token.
	CtxDeviceToken = "device_token"
)

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// DeviceTokenAuth admits requests whose X-Device-Token equals the current
// device token. Before a token exists every request is refused.
func DeviceTokenAuth(tokens ports.TokenSource, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(HeaderDeviceToken)
		current := tokens.Token()
		if current == "" {
			response.Error(c, apperror.ErrNoDeviceToken())
			c.Abort()
			return
		}
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(current)) != 1 {
			log.Warn().
				Str("presented", logger.RedactToken(presented)).
				Str("client_ip", c.ClientIP()).
				Msg("device token mismatch")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}
		c.Set(CtxDeviceToken, presented)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(response.CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, apperror.InternalError(nil))
				c.Abort()
			}
		}()
		c.Next()
	}
}
