package port

import (
	"context"
)

// Store is the snapshot mirror of adapter state. One key per adapter family
// holding a JSON blob. Writes are last-write-wins; adapters never read back
// after the initial load.
type Store interface {
	// Get returns the stored blob and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
