package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/guiyuanju/mossdb/internal/kv/domain"
	"github.com/guiyuanju/mossdb/internal/kv/port"
)

var (
	// ErrEmptyKey is returned when an operation is given a zero-length key.
	ErrEmptyKey = errors.New("key cannot be empty")
	// ErrEmptyValue is returned when Set is given a zero-length value.
	ErrEmptyValue = errors.New("value cannot be empty")
)

// KVServiceImpl validates input before handing it to the storage engine.
// Zero-length values are rejected here as well as in the engine: a
// zero-length record on disk is a tombstone, so only Del may write one.
type KVServiceImpl struct {
	storage port.Storage
}

var _ port.KVService = (*KVServiceImpl)(nil)

// NewKVService creates the service over an open storage engine.
func NewKVService(storage port.Storage) *KVServiceImpl {
	return &KVServiceImpl{storage: storage}
}

func (s *KVServiceImpl) Set(ctx context.Context, key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}
	if err := s.storage.Set(ctx, key, value); err != nil {
		logger.Errorw("Set failed", "key", string(key), "error", err.Error())
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

func (s *KVServiceImpl) Get(ctx context.Context, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	value, err := s.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, port.ErrKeyNotFound) {
			return nil, err
		}
		logger.Errorw("Get failed", "key", string(key), "error", err.Error())
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

func (s *KVServiceImpl) Del(ctx context.Context, key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if err := s.storage.Del(ctx, key); err != nil {
		logger.Errorw("Del failed", "key", string(key), "error", err.Error())
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (s *KVServiceImpl) Dump(ctx context.Context) ([]domain.SegmentDump, error) {
	return s.storage.Dump(ctx)
}

func (s *KVServiceImpl) Close() error {
	return s.storage.Close()
}
