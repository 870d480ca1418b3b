package port

import (
	"context"
	"errors"

	"github.com/guiyuanju/mossdb/internal/kv/domain"
)

var (
	ErrKeyNotFound = errors.New("key not found")
)

//go:generate mockgen -destination=mocks/storage_mock.go -package=mocks -source=storage.go

// Storage defines the interface for the local key-value storage engine.
// Implementations are single-writer and not safe for concurrent use; the
// caller is responsible for serializing access.
type Storage interface {
	// Set stores value under key, overwriting any previous value. Values
	// must be non-empty; only Del may produce zero-length records.
	Set(ctx context.Context, key, value []byte) error

	// Get returns the current value for key, or ErrKeyNotFound if the key
	// is absent or deleted.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Del removes key. Deleting an absent key is a no-op, not an error.
	Del(ctx context.Context, key []byte) error

	// Dump returns every record of every segment in file order, for
	// diagnostics and inspection.
	Dump(ctx context.Context) ([]domain.SegmentDump, error)

	// Close releases all file handles.
	Close() error
}
