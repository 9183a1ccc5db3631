package domain

import "time"

// AuditLog represents an audit event.
type AuditLog struct {
	ID             string
	SubscriptionID string
	Actor          string // admin identity or device id that triggered the action
	Action         string
	Resource       string
	IP             string
	Metadata       string
	CreatedAt      time.Time
}
