package port

import (
	"context"

	"github.com/guiyuanju/mossdb/internal/kv/domain"
)

// KVService is the application-facing surface consumed by inbound adapters.
// It wraps Storage with input validation.
type KVService interface {
	Set(ctx context.Context, key, value []byte) error
	Get(ctx context.Context, key []byte) ([]byte, error)
	Del(ctx context.Context, key []byte) error
	Dump(ctx context.Context) ([]domain.SegmentDump, error)
	Close() error
}
