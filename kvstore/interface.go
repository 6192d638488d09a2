package kvstore

import "context"

// Store is a durable string key-value store shared by every process of the
// extension. Each call is atomic from the caller's point of view.
type Store interface {
	// Get returns the values of the requested keys that exist.
	// Missing keys are absent from the result (not an error).
	Get(ctx context.Context, keys ...string) (map[string]string, error)

	// Set writes all values in one operation.
	Set(ctx context.Context, values map[string]string) error

	// Remove deletes the keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error

	// Close releases any resources held by the store.
	Close() error
}
