package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// HistoryStore keeps the decided-actions history as one JSON array under a
// namespaced key. Only history is persisted; pending is always rebuilt from
// the backend.
type HistoryStore struct {
	client goredis.UniversalClient
	key    string
}

var _ ports.HistoryStore = (*HistoryStore)(nil)

func NewHistoryStore(client goredis.UniversalClient, key string) *HistoryStore {
	return &HistoryStore{client: client, key: key}
}

// Load returns the persisted records undecoded, or nil when nothing was
// saved yet.
func (s *HistoryStore) Load(ctx context.Context) ([]json.RawMessage, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis history get: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decoding persisted history: %w", err)
	}
	return records, nil
}

// Save overwrites the persisted history.
func (s *HistoryStore) Save(ctx context.Context, history []domain.ApprovalAction) error {
	if history == nil {
		history = []domain.ApprovalAction{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis history set: %w", err)
	}
	return nil
}
