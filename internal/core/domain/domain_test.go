package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActionKind_Parse(t *testing.T) {
	tests := []struct {
		raw        string
		strictOK   bool
		lenientOut ActionKind
	}{
		{"swap", true, ActionKindSwap},
		{"transfer", true, ActionKindTransfer},
		{"trade", true, ActionKindTrade},
		{"stake", true, ActionKindStake},
		{"unstake", true, ActionKindUnstake},
		{"other", true, ActionKindOther},
		{"bridge", false, ActionKindOther},
		{"SWAP", false, ActionKindOther},
		{"", false, ActionKindOther},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, ok := ParseActionKindStrict(tt.raw)
			assert.Equal(t, tt.strictOK, ok)
			assert.Equal(t, tt.lenientOut, ParseActionKindLenient(tt.raw))
		})
	}
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, StatusPending.IsDecision())
	assert.True(t, StatusApproved.IsDecision())
	assert.True(t, StatusRejected.IsDecision())
	assert.False(t, Status("expired").Valid())
}

func TestApprovalAction_EndpointFor(t *testing.T) {
	a := ApprovalAction{ApproveURL: "https://x/approve", RejectURL: "https://x/reject"}

	assert.Equal(t, "https://x/approve", a.EndpointFor(StatusApproved))
	assert.Equal(t, "https://x/reject", a.EndpointFor(StatusRejected))
}

func TestApprovalAction_IsExpired(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	assert.False(t, ApprovalAction{Expiry: now.UnixMilli() + 1}.IsExpired(now))
	assert.False(t, ApprovalAction{Expiry: now.UnixMilli()}.IsExpired(now), "expiry instant itself is still open")
	assert.True(t, ApprovalAction{Expiry: now.UnixMilli() - 1}.IsExpired(now))
}

func TestEvaluate(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name    string
		offset  int64 // expiry - now, millis
		seconds int64
		clock   string
		label   string
		expired bool
	}{
		{"five minutes", 300_000, 300, "05:00", "5:00 left", false},
		{"floors partial second", 61_999, 61, "01:01", "1:01 left", false},
		{"under a second", 999, 0, "00:00", "0:00 left", false},
		{"exactly now", 0, 0, "00:00", "0:00 left", false},
		{"one milli past", -1, 0, "00:00", "Expired", true},
		{"long past", -90_000, 0, "00:00", "Expired", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Evaluate(ApprovalAction{Expiry: now.UnixMilli() + tt.offset}, now)
			assert.Equal(t, tt.seconds, c.Seconds)
			assert.Equal(t, time.Duration(tt.seconds)*time.Second, c.Remaining)
			assert.Equal(t, tt.clock, c.Clock())
			assert.Equal(t, tt.label, c.Label())
			assert.Equal(t, tt.expired, c.Expired)
		})
	}
}

func TestStateAt(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	past := now.UnixMilli() - 1
	future := now.UnixMilli() + 1000

	assert.Equal(t, DisplayPending, StateAt(ApprovalAction{Status: StatusPending, Expiry: future}, now))
	assert.Equal(t, DisplayExpired, StateAt(ApprovalAction{Status: StatusPending, Expiry: past}, now))
	assert.Equal(t, DisplayApproved, StateAt(ApprovalAction{Status: StatusApproved, Expiry: past}, now))
	assert.Equal(t, DisplayRejected, StateAt(ApprovalAction{Status: StatusRejected, Expiry: future}, now))
}

func TestNewDecisionRecord(t *testing.T) {
	a := ApprovalAction{ID: "a1", Coin: "ETH", Kind: ActionKindSwap, Amount: "1.5",
		ApproveURL: "https://x/approve", RejectURL: "https://x/reject"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	rec := NewDecisionRecord(a, StatusRejected, DecisionRolledBack, at)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "a1", rec.ActionID)
	assert.Equal(t, "https://x/reject", rec.Endpoint)
	assert.Equal(t, DecisionRolledBack, rec.Result)
	assert.Equal(t, time.UTC, rec.DecidedAt.Location())
}
