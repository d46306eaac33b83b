package domain

import "time"

// ActionKind is the closed set of operations an agent can ask approval for.
type ActionKind string

const (
	ActionKindSwap     ActionKind = "swap"
	ActionKindTransfer ActionKind = "transfer"
	ActionKindTrade    ActionKind = "trade"
	ActionKindStake    ActionKind = "stake"
	ActionKindUnstake  ActionKind = "unstake"
	ActionKindOther    ActionKind = "other"
)

// ActionKinds lists every valid kind.
var ActionKinds = []ActionKind{
	ActionKindSwap,
	ActionKindTransfer,
	ActionKindTrade,
	ActionKindStake,
	ActionKindUnstake,
	ActionKindOther,
}

// Valid reports whether k is one of the enumerated kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionKindSwap, ActionKindTransfer, ActionKindTrade,
		ActionKindStake, ActionKindUnstake, ActionKindOther:
		return true
	}
	return false
}

// ParseActionKindStrict accepts only enumerated kinds. Used for the backend
// list endpoint, which is authoritative and must fail closed.
func ParseActionKindStrict(s string) (ActionKind, bool) {
	k := ActionKind(s)
	return k, k.Valid()
}

// ParseActionKindLenient maps unknown kinds to ActionKindOther. Only push
// payloads from third parties are decoded this way, so that a newer sender
// cannot crash the decoder with a kind we do not know yet.
func ParseActionKindLenient(s string) ActionKind {
	if k, ok := ParseActionKindStrict(s); ok {
		return k
	}
	return ActionKindOther
}

// Status is the lifecycle state of an action. It only moves forward:
// pending -> approved | rejected.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// IsDecision reports whether s is a terminal outcome.
func (s Status) IsDecision() bool {
	return s == StatusApproved || s == StatusRejected
}

// ApprovalAction is an automated operation awaiting (or having received) a
// human decision.
type ApprovalAction struct {
	ID         string     `json:"id" validate:"required"`
	Coin       string     `json:"coin" validate:"required"`
	Kind       ActionKind `json:"action" validate:"required,oneof=swap transfer trade stake unstake other"`
	Amount     string     `json:"amount" validate:"required"` // opaque decimal string, display only
	Expiry     int64      `json:"expiry" validate:"gt=0"`     // epoch millis
	ApproveURL string     `json:"approveUrl" validate:"required,http_endpoint"`
	RejectURL  string     `json:"rejectUrl" validate:"required,http_endpoint"`
	Status     Status     `json:"status" validate:"required,oneof=pending approved rejected"`
	CreatedAt  int64      `json:"timestamp" validate:"gt=0"` // epoch millis, when this client first saw it
}

// EndpointFor returns the URL a decision must be posted to.
func (a ApprovalAction) EndpointFor(outcome Status) string {
	if outcome == StatusApproved {
		return a.ApproveURL
	}
	return a.RejectURL
}

// ExpiresAt returns the expiry as a time.Time.
func (a ApprovalAction) ExpiresAt() time.Time {
	return time.UnixMilli(a.Expiry)
}

// IsExpired reports whether the decision window has closed at now.
func (a ApprovalAction) IsExpired(now time.Time) bool {
	return now.UnixMilli() > a.Expiry
}

// NowMillis converts t to epoch milliseconds.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}
