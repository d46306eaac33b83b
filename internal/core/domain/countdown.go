package domain

import (
	"fmt"
	"time"
)

// DisplayState is what a consumer should render for an action at a point in time.
type DisplayState string

const (
	DisplayPending  DisplayState = "pending"
	DisplayExpired  DisplayState = "expired"
	DisplayApproved DisplayState = "approved"
	DisplayRejected DisplayState = "rejected"
)

// Countdown is the remaining decision window of an action, evaluated at one instant.
type Countdown struct {
	Remaining time.Duration `json:"-"`
	Seconds   int64         `json:"secondsLeft"`
	Minutes   int64         `json:"minutes"`
	SecondsOf int64         `json:"seconds"`
	Expired   bool          `json:"expired"`
}

// Evaluate computes the countdown of a at now. Whole seconds are floored and
// clamped at zero; the action counts as expired only once now is past expiry.
// It is a pure function: consumers call it again on every tick.
func Evaluate(a ApprovalAction, now time.Time) Countdown {
	left := (a.Expiry - now.UnixMilli()) / 1000
	if left < 0 {
		left = 0
	}
	return Countdown{
		Remaining: time.Duration(left) * time.Second,
		Seconds:   left,
		Minutes:   left / 60,
		SecondsOf: left % 60,
		Expired:   a.IsExpired(now),
	}
}

// Clock renders the countdown as mm:ss.
func (c Countdown) Clock() string {
	return fmt.Sprintf("%02d:%02d", c.Minutes, c.SecondsOf)
}

// Label renders the short list-row text.
func (c Countdown) Label() string {
	if c.Expired {
		return "Expired"
	}
	return fmt.Sprintf("%d:%02d left", c.Minutes, c.SecondsOf)
}

// StateAt derives the display state. Stale (expired but still pending) is
// never stored; it is computed here.
func StateAt(a ApprovalAction, now time.Time) DisplayState {
	switch a.Status {
	case StatusApproved:
		return DisplayApproved
	case StatusRejected:
		return DisplayRejected
	}
	if a.IsExpired(now) {
		return DisplayExpired
	}
	return DisplayPending
}
