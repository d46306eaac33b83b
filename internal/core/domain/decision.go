package domain

import (
	"time"

	"github.com/google/uuid"
)

// DecisionResult is the terminal state a decide attempt reached.
type DecisionResult string

const (
	DecisionConfirmed  DecisionResult = "confirmed"
	DecisionRolledBack DecisionResult = "rolled_back"
)

// DecisionRecord is one row of the decision audit trail.
type DecisionRecord struct {
	ID         uuid.UUID      `json:"id"`
	ActionID   string         `json:"action_id"`
	Coin       string         `json:"coin"`
	Kind       ActionKind     `json:"action"`
	Amount     string         `json:"amount"`
	Outcome    Status         `json:"outcome"`
	Result     DecisionResult `json:"result"`
	Endpoint   string         `json:"endpoint"`
	HTTPStatus *int           `json:"http_status,omitempty"`
	Error      *string        `json:"error,omitempty"`
	DecidedAt  time.Time      `json:"decided_at"`
}

// NewDecisionRecord builds an audit row for a decide attempt on a.
func NewDecisionRecord(a ApprovalAction, outcome Status, result DecisionResult, at time.Time) *DecisionRecord {
	return &DecisionRecord{
		ID:        uuid.New(),
		ActionID:  a.ID,
		Coin:      a.Coin,
		Kind:      a.Kind,
		Amount:    a.Amount,
		Outcome:   outcome,
		Result:    result,
		Endpoint:  a.EndpointFor(outcome),
		DecidedAt: at.UTC(),
	}
}
