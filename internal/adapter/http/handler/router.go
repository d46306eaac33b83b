package handler

import (
	"time"

	"approval-gateway/config"
	"approval-gateway/internal/adapter/http/middleware"
	"approval-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Sync           ports.SyncService
	Approvals      ports.ApprovalReader
	Device         ports.DeviceService
	Notifications  ports.NotificationService
	DecisionLog    ports.DecisionLogRepository // nil = /decisions not served
	RateLimitStore ports.RateLimitStore        // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Server         config.ServerConfig
	Clock          func() time.Time
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	switch deps.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(deps.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.RateLimitRules(deps.Server)
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Push ingress (device token + rate limit) ---
	notificationHandler := NewNotificationHandler(deps.Notifications, deps.Clock)
	v1.POST("/notifications",
		rl(middleware.GroupNotifications),
		middleware.DeviceTokenAuth(deps.Device, deps.Logger),
		notificationHandler.Receive,
	)

	// --- Local API ---
	approvalHandler := NewApprovalHandler(deps.Sync, deps.Approvals, deps.Clock)
	approvals := v1.Group("/approvals")
	{
		approvals.GET("", approvalHandler.ListPending)
		approvals.POST("/refresh", approvalHandler.Refresh)
		approvals.GET("/:id", approvalHandler.Get)
		approvals.POST("/:id/approve", rl(middleware.GroupDecisions), approvalHandler.Approve)
		approvals.POST("/:id/reject", rl(middleware.GroupDecisions), approvalHandler.Reject)
	}

	history := v1.Group("/history")
	{
		history.GET("", approvalHandler.ListHistory)
		history.DELETE("", approvalHandler.ClearHistory)
	}

	v1.GET("/sync/status", approvalHandler.SyncStatus)

	deviceHandler := NewDeviceHandler(deps.Device)
	device := v1.Group("/device")
	{
		device.GET("", deviceHandler.Get)
		device.POST("/register", deviceHandler.Register)
	}

	if deps.DecisionLog != nil {
		decisionLogHandler := NewDecisionLogHandler(deps.DecisionLog)
		v1.GET("/decisions", decisionLogHandler.List)
	}

	return r
}
