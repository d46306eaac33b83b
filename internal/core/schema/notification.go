package schema

import (
	"time"

	"approval-gateway/internal/core/domain"
)

// NotificationPayload is the data block of a push notification.
type NotificationPayload struct {
	ActionID   string      `json:"actionId" validate:"required"`
	Coin       string      `json:"coin" validate:"required"`
	Action     string      `json:"action" validate:"required"`
	Amount     string      `json:"amount" validate:"required"`
	Expiry     EpochMillis `json:"expiry" validate:"gt=0"`
	ApproveURL string      `json:"approveUrl" validate:"required,http_endpoint"`
	RejectURL  string      `json:"rejectUrl" validate:"required,http_endpoint"`
}

// ValidateNotification validates a push payload in lenient mode: every field
// is required, but the action kind is accepted as free text.
func ValidateNotification(raw []byte) (NotificationPayload, error) {
	var p NotificationPayload
	if err := decodeObject(-1, raw, &p); err != nil {
		return NotificationPayload{}, err
	}
	if err := validate.Struct(p); err != nil {
		return NotificationPayload{}, fromValidator(-1, err)
	}
	return p, nil
}

// KindCoerced reports whether the payload's action kind is unknown and will
// be shown as "other".
func (p NotificationPayload) KindCoerced() bool {
	_, ok := domain.ParseActionKindStrict(p.Action)
	return !ok
}

// ToAction stamps the payload as a new pending action first seen at now.
func (p NotificationPayload) ToAction(now time.Time) domain.ApprovalAction {
	return domain.ApprovalAction{
		ID:         p.ActionID,
		Coin:       p.Coin,
		Kind:       domain.ParseActionKindLenient(p.Action),
		Amount:     p.Amount,
		Expiry:     int64(p.Expiry),
		ApproveURL: p.ApproveURL,
		RejectURL:  p.RejectURL,
		Status:     domain.StatusPending,
		CreatedAt:  millis(now),
	}
}
