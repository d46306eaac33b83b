package dto

import (
	"time"

	"approval-gateway/internal/core/domain"
	"approval-gateway/internal/core/ports"
)

// RegisterDeviceRequest is the optional body of POST /device/register.
type RegisterDeviceRequest struct {
	PushToken string `json:"push_token" binding:"omitempty,max=4096,push_token"`
}

// ActionIDParam binds the :id path segment.
type ActionIDParam struct {
	ID string `uri:"id" binding:"required,action_id"`
}

// HistoryQuery pages the decided list, newest first.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// DecisionLogQuery filters the decision audit log.
type DecisionLogQuery struct {
	ActionID string `form:"action_id" binding:"omitempty,action_id"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ActionResponse is an action plus its countdown evaluated at response time.
type ActionResponse struct {
	domain.ApprovalAction
	State     domain.DisplayState `json:"state"`
	Countdown domain.Countdown    `json:"countdown"`
	Clock     string              `json:"clock"`
	Label     string              `json:"label"`
}

// NewActionResponse evaluates a at now.
func NewActionResponse(a domain.ApprovalAction, now time.Time) ActionResponse {
	cd := domain.Evaluate(a, now)
	return ActionResponse{
		ApprovalAction: a,
		State:          domain.StateAt(a, now),
		Countdown:      cd,
		Clock:          cd.Clock(),
		Label:          cd.Label(),
	}
}

// NewActionList evaluates every action at the same instant.
func NewActionList(list []domain.ApprovalAction, now time.Time) []ActionResponse {
	out := make([]ActionResponse, 0, len(list))
	for _, a := range list {
		out = append(out, NewActionResponse(a, now))
	}
	return out
}

// ApprovalListResponse is the body of GET /approvals.
type ApprovalListResponse struct {
	Items []ActionResponse `json:"items"`
	Total int              `json:"total"`
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Items []domain.ApprovalAction `json:"items"`
	Total int                     `json:"total"`
}

// DecisionResponse is returned after a confirmed approve or reject.
type DecisionResponse struct {
	ID      string        `json:"id"`
	Status  domain.Status `json:"status"`
	Decided bool          `json:"decided"`
}

// DeviceResponse describes the device identity. The token is only shown
// as a prefix.
type DeviceResponse struct {
	TokenPrefix  string     `json:"token_prefix"`
	Registered   bool       `json:"registered"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	HasPushToken bool       `json:"has_push_token"`
}

// RegisterDeviceResponse is the body of POST /device/register.
type RegisterDeviceResponse struct {
	Registered bool `json:"registered"`
}

// SyncStatusResponse is the body of GET /sync/status.
type SyncStatusResponse struct {
	ports.SyncStatus
	PendingCount int `json:"pending_count"`
	HistoryCount int `json:"history_count"`
}

// DecisionLogResponse lists audit records.
type DecisionLogResponse struct {
	Items []domain.DecisionRecord `json:"items"`
}
