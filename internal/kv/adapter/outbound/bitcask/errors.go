package bitcask

import "errors"

var (
	// ErrCorruptSegment is returned when a segment file ends in a
	// malformed record: a truncated length prefix or a declared length
	// that runs past the end of the file.
	ErrCorruptSegment = errors.New("corrupt segment")

	// ErrEmptyValue is returned by Set for zero-length values. A
	// zero-length record is a tombstone on disk, so only Del may write
	// one.
	ErrEmptyValue = errors.New("empty value not allowed, use Del to delete a key")

	// ErrClosed is returned for operations on a closed engine.
	ErrClosed = errors.New("engine is closed")
)
