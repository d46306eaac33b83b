package domain

import "time"

// DeviceIdentity is the client-generated credential used with the backend.
type DeviceIdentity struct {
	Token        string     `json:"token"`
	Registered   bool       `json:"registered"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	PushToken    string     `json:"-"`
}
