// Package producer defines the interface for emitting licensing events to a
// broker (e.g. Kafka).
package producer

import (
	"context"

	"flowlytix/licensing/internal/telemetry/domain"
)

// Producer emits licensing events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single licensing event. Implementations may block briefly; call from a goroutine if needed.
	// Returns an error only on write failure; callers typically log and ignore.
	Emit(ctx context.Context, event *domain.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
