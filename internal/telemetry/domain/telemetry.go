package domain

import "time"

// Event types emitted by the licensing core.
const (
	EventActivation         = "activation"
	EventActivationFailed   = "activation_failed"
	EventValidationDegraded = "validation_degraded"
	EventRefresh            = "refresh"
	EventDeactivation       = "deactivation"
	EventRevocation         = "revocation"
	EventHeartbeat          = "heartbeat"
)

// Event represents a licensing telemetry event (subscription-scoped, optional
// device). Serialized as JSON on the wire.
type Event struct {
	SubscriptionID string            `json:"subscription_id,omitempty"`
	DeviceID       string            `json:"device_id,omitempty"`
	EventType      string            `json:"event_type"`
	Source         string            `json:"source"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
