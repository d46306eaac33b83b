package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"

	"approval-gateway/internal/core/domain"
)

// HistoryStore persists the decided-actions history.
// Load returns raw records so that each one can be validated on its own.
type HistoryStore interface {
	Load(ctx context.Context) ([]json.RawMessage, error)
	Save(ctx context.Context, history []domain.ApprovalAction) error
}

// SecureStore is an encrypted key/value store for credentials.
// Get returns found=false, err=nil for a missing key.
type SecureStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// DecisionLogRepository is the audit trail of decide attempts.
type DecisionLogRepository interface {
	Create(ctx context.Context, rec *domain.DecisionRecord) error
	ListByAction(ctx context.Context, actionID string) ([]domain.DecisionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.DecisionRecord, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// RateLimitStore counts requests per key in fixed windows.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}
