package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/store"
)

// --- Outbound ---

// RegisterDeviceRequest is the body of POST /devices/register.
type RegisterDeviceRequest struct {
	Token     string `json:"token"`
	PushToken string `json:"pushToken,omitempty"`
}

// RegisterDeviceResponse is the optional body returned by the backend.
// Only the HTTP status is authoritative.
type RegisterDeviceResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

// DecisionResponse is the optional body of an approve/reject call.
type DecisionResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	ActionID string `json:"actionId,omitempty"`
}

// BackendClient talks to the approval backend. Non-2xx responses are
// returned as API_001 errors, transport failures as NET_001.
type BackendClient interface {
	// FetchPending returns the raw body of GET /pushcut/status.
	FetchPending(ctx context.Context, token string) ([]byte, error)
	// PostDecision posts {token, actionId} to endpoint.
	PostDecision(ctx context.Context, endpoint, token, actionID string) (*DecisionResponse, error)
	RegisterDevice(ctx context.Context, req RegisterDeviceRequest) (*RegisterDeviceResponse, error)
	// DecisionDefaults returns the endpoints used when the list omits them.
	DecisionDefaults() (approveURL, rejectURL string)
}

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// TokenSource yields the current device token, or "" when none exists yet.
type TokenSource interface {
	Token() string
}

// --- Service Ports (Business Logic) ---

// SyncStatus describes the last poll.
type SyncStatus struct {
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Generation   uint64     `json:"generation"`
	Polling      bool       `json:"polling"`
	InFlight     []string   `json:"in_flight"`
}

// SyncService reconciles with the backend and runs decisions.
type SyncService interface {
	Run(ctx context.Context)
	Refresh(ctx context.Context) error
	Decide(ctx context.Context, id string, outcome domain.Status) (domain.ApprovalAction, error)
	Approve(ctx context.Context, id string) (domain.ApprovalAction, error)
	Reject(ctx context.Context, id string) (domain.ApprovalAction, error)
	Status() SyncStatus
}

// DeviceService owns the device identity.
type DeviceService interface {
	TokenSource
	Init(ctx context.Context) (domain.DeviceIdentity, error)
	GetOrCreateToken(ctx context.Context) (string, error)
	Register(ctx context.Context, token string) bool
	ReRegister(ctx context.Context) bool
	Identity() domain.DeviceIdentity
	SetPushToken(pushToken string)
}

// NotificationService turns push payloads into pending actions.
type NotificationService interface {
	Decode(raw []byte) (domain.ApprovalAction, error)
}

// ApprovalReader is the read side of the approval repository plus the one
// user-driven mutation that does not involve the backend.
type ApprovalReader interface {
	Pending() []domain.ApprovalAction
	History() []domain.ApprovalAction
	Find(id string) (domain.ApprovalAction, bool)
	Snapshot() store.Snapshot
	ClearHistory()
}
