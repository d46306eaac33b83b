package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"approval-gateway/config"
	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"
	"approval-gateway/pkg/apperror"
	"approval-gateway/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeviceService implements ports.DeviceService. The token is generated once,
// kept in the secure store and reused for the lifetime of the installation.
type DeviceService struct {
	secure   ports.SecureStore
	backend  ports.BackendClient
	tokenKey string
	newToken func() string
	now      func() time.Time
	log      zerolog.Logger

	createMu sync.Mutex // serializes get-or-create

	mu       sync.RWMutex
	identity domain.DeviceIdentity
}

var _ ports.DeviceService = (*DeviceService)(nil)

func NewDeviceService(
	secure ports.SecureStore,
	backend ports.BackendClient,
	cfg config.DeviceConfig,
	log zerolog.Logger,
) *DeviceService {
	return &DeviceService{
		secure:   secure,
		backend:  backend,
		tokenKey: cfg.TokenKey,
		newToken: uuid.NewString,
		now:      time.Now,
		log:      logger.Component(log, "device"),
		identity: domain.DeviceIdentity{PushToken: cfg.PushToken},
	}
}

// GetOrCreateToken returns the stored token, creating and persisting a new
// random one on first use. Concurrent callers all receive the same token.
func (s *DeviceService) GetOrCreateToken(ctx context.Context) (string, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	if token := s.Token(); token != "" {
		return token, nil
	}

	stored, found, err := s.secure.Get(ctx, s.tokenKey)
	if err != nil {
		return "", apperror.ErrStorage(fmt.Errorf("reading device token: %w", err))
	}
	if found && stored != "" {
		s.setToken(stored)
		s.log.Debug().Str("token", logger.RedactToken(stored)).Msg("device token loaded")
		return stored, nil
	}

	token := s.newToken()
	if err := s.secure.Set(ctx, s.tokenKey, token); err != nil {
		return "", apperror.ErrStorage(fmt.Errorf("persisting device token: %w", err))
	}
	s.setToken(token)
	s.log.Info().Str("token", logger.RedactToken(token)).Msg("device token created")
	return token, nil
}

// Register announces token to the backend. Failures are logged and
// reported as false; they never abort the caller.
func (s *DeviceService) Register(ctx context.Context, token string) bool {
	s.mu.RLock()
	pushToken := s.identity.PushToken
	s.mu.RUnlock()

	resp, err := s.backend.RegisterDevice(ctx, ports.RegisterDeviceRequest{Token: token, PushToken: pushToken})
	if err != nil {
		s.log.Warn().Err(err).Str("token", logger.RedactToken(token)).Msg("device registration failed")
		return false
	}
	if !resp.Success {
		s.log.Warn().Str("message", resp.Message).Msg("registration accepted with success=false body")
	}

	at := s.now().UTC()
	s.mu.Lock()
	if s.identity.Token == token {
		s.identity.Registered = true
		s.identity.RegisteredAt = &at
	}
	s.mu.Unlock()

	s.log.Info().Str("token", logger.RedactToken(token)).Msg("device registered")
	return true
}

// ReRegister registers the existing token again.
func (s *DeviceService) ReRegister(ctx context.Context) bool {
	token, err := s.GetOrCreateToken(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("re-registration: no device token")
		return false
	}
	return s.Register(ctx, token)
}

// Init loads or creates the token and registers it. Only a storage failure
// is an error; a failed registration leaves Registered=false.
func (s *DeviceService) Init(ctx context.Context) (domain.DeviceIdentity, error) {
	token, err := s.GetOrCreateToken(ctx)
	if err != nil {
		return domain.DeviceIdentity{}, err
	}
	s.Register(ctx, token)
	return s.Identity(), nil
}

// Token returns the cached token, or "" before GetOrCreateToken succeeded.
func (s *DeviceService) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.Token
}

func (s *DeviceService) Identity() domain.DeviceIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := s.identity
	if id.RegisteredAt != nil {
		at := *id.RegisteredAt
		id.RegisteredAt = &at
	}
	return id
}

// SetPushToken sets the push-delivery token sent with the next registration.
func (s *DeviceService) SetPushToken(pushToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity.PushToken = pushToken
}

func (s *DeviceService) setToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity.Token != token {
		s.identity.Registered = false
		s.identity.RegisteredAt = nil
	}
	s.identity.Token = token
}
