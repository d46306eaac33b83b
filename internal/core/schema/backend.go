package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"approval-gateway/internal/core/domain"
)

// Defaults fills the decision endpoints the backend may omit.
type Defaults struct {
	ApproveURL string
	RejectURL  string
}

// BackendItem is one element of the GET /pushcut/status response.
type BackendItem struct {
	ActionID   string      `json:"actionId"`
	ID         string      `json:"id"`
	Coin       string      `json:"coin" validate:"required"`
	Action     string      `json:"action" validate:"required"`
	Amount     string      `json:"amount" validate:"required"`
	Expiry     EpochMillis `json:"expiry" validate:"gt=0"`
	ApproveURL string      `json:"approveUrl" validate:"omitempty,http_endpoint"`
	RejectURL  string      `json:"rejectUrl" validate:"omitempty,http_endpoint"`
}

// ValidateBackendList validates the pending list in strict mode. The first
// invalid element aborts the whole batch: a human must never silently miss
// an action because a sibling was malformed. now stamps CreatedAt.
func ValidateBackendList(raw []byte, defaults Defaults, now time.Time) ([]domain.ApprovalAction, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, &ValidationError{Index: -1, Reason: "expected a JSON array"}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, &ValidationError{Index: -1, Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}

	actions := make([]domain.ApprovalAction, 0, len(elems))
	seen := make(map[string]int, len(elems))
	for i, elem := range elems {
		a, err := validateBackendItem(i, elem, defaults, now)
		if err != nil {
			return nil, err
		}
		if first, dup := seen[a.ID]; dup {
			return nil, &ValidationError{Index: i, Field: "id",
				Reason: fmt.Sprintf("duplicate of item %d", first)}
		}
		seen[a.ID] = i
		actions = append(actions, a)
	}
	return actions, nil
}

func validateBackendItem(index int, raw []byte, defaults Defaults, now time.Time) (domain.ApprovalAction, error) {
	var item BackendItem
	if err := decodeObject(index, raw, &item); err != nil {
		return domain.ApprovalAction{}, err
	}
	if err := validate.Struct(item); err != nil {
		return domain.ApprovalAction{}, fromValidator(index, err)
	}

	id := item.ActionID
	if id == "" {
		id = item.ID
	}
	if id == "" {
		return domain.ApprovalAction{}, &ValidationError{Index: index, Field: "id", Reason: "one of actionId or id is required"}
	}

	kind, ok := domain.ParseActionKindStrict(item.Action)
	if !ok {
		return domain.ApprovalAction{}, &ValidationError{Index: index, Field: "action",
			Reason: fmt.Sprintf("unknown action kind %q", item.Action)}
	}

	a := domain.ApprovalAction{
		ID:         id,
		Coin:       item.Coin,
		Kind:       kind,
		Amount:     item.Amount,
		Expiry:     int64(item.Expiry),
		ApproveURL: firstNonEmpty(item.ApproveURL, defaults.ApproveURL),
		RejectURL:  firstNonEmpty(item.RejectURL, defaults.RejectURL),
		Status:     domain.StatusPending,
		CreatedAt:  millis(now),
	}
	if err := ValidateAction(a); err != nil {
		ve, _ := AsValidationError(err)
		if ve != nil {
			ve.Index = index
		}
		return domain.ApprovalAction{}, err
	}
	return a, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
