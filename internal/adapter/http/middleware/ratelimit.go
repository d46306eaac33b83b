package middleware

import (
	"fmt"
	"strconv"
	"time"

	"approval-gateway/config"
	"approval-gateway/internal/core/ports"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Rate limit groups.
const (
	GroupNotifications = "notifications"
	GroupDecisions     = "decisions"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// RateLimitRules returns the limits per endpoint group. The push ingress
// limit is configurable; decisions get a fixed ceiling.
func RateLimitRules(cfg config.ServerConfig) map[string]RateLimitRule {
	rules := map[string]RateLimitRule{
		GroupNotifications: {Limit: 60, Window: time.Minute},
		GroupDecisions:     {Limit: 30, Window: time.Minute},
	}
	if cfg.NotificationLimit > 0 && cfg.NotificationWindow > 0 {
		rules[GroupNotifications] = RateLimitRule{Limit: cfg.NotificationLimit, Window: cfg.NotificationWindow}
	}
	return rules
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Store failures let the request through.
func RateLimiter(store ports.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", group, c.ClientIP())

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}
