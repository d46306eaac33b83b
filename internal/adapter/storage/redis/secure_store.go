package redis

import (
	"context"
	"errors"
	"fmt"

	"approval-gateway/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// SecureStore implements ports.SecureStore: values are sealed with the
// encryption service before they reach Redis.
type SecureStore struct {
	client goredis.UniversalClient
	enc    ports.EncryptionService
	prefix string
}

var _ ports.SecureStore = (*SecureStore)(nil)

func NewSecureStore(client goredis.UniversalClient, enc ports.EncryptionService) *SecureStore {
	return &SecureStore{
		client: client,
		enc:    enc,
		prefix: "secure:",
	}
}

// Get returns the decrypted value, or found=false if the key does not exist.
func (s *SecureStore) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis secure get: %w", err)
	}

	value, err := s.enc.Decrypt(sealed)
	if err != nil {
		return "", false, fmt.Errorf("decrypting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SecureStore) Set(ctx context.Context, key string, value string) error {
	sealed, err := s.enc.Encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, sealed, 0).Err(); err != nil {
		return fmt.Errorf("redis secure set: %w", err)
	}
	return nil
}

func (s *SecureStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis secure delete: %w", err)
	}
	return nil
}
