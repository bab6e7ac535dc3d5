// Package archive persists raw catalog feed pages to blob storage so past
// observations can be replayed or audited. Archiving is optional; the
// fetcher treats a nil or no-op provider as "do not archive".
package archive

import (
	"context"
)

// Provider saves one blob under an object name.
type Provider interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider discards everything. Used when no bucket is configured.
type NoOpProvider struct{}

// Save does nothing and always returns nil.
func (n *NoOpProvider) Save(_ context.Context, _ string, _ []byte) error {
	return nil
}
