// Package publish streams change events to downstream consumers. The
// monitoring loops treat publishing as optional and best effort.
package publish

import "context"

// Provider publishes one payload to a named topic and returns the
// broker-assigned message ID.
type Provider interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
