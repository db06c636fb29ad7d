package store

import "context"

// KV is the durable key-value storage the draft and pending-attachment
// stores mirror into. Get returns linkup_errors.ErrNotFound on a missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
