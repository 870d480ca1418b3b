package bitcask

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/guiyuanju/mossdb/internal/kv/domain"
)

const (
	// SegmentSuffix is the extension of every segment file.
	SegmentSuffix = ".log"
	// MergeFileName is the transient merge output. It never survives a
	// successful merge or an Open.
	MergeFileName = "log.merging"

	lenPrefixSize = 8
)

// Segment is one append-only log file. Records are laid out as
// key_len(u64 BE) | key | value_len(u64 BE) | value, and a zero-length
// value marks a tombstone. Segments are immutable except for appends to
// the active one and wholesale replacement during a merge.
type Segment struct {
	path  string
	file  *os.File
	fsync bool
}

// openSegment opens path for read and append, creating the file if absent.
// It never truncates.
func openSegment(path string, fsync bool) (*Segment, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %s: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to seek segment %s: %w", path, err)
	}
	return &Segment{path: path, file: file, fsync: fsync}, nil
}

// newSegment creates a fresh segment file, failing if one already exists
// under that name.
func newSegment(path string, fsync bool) (*Segment, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to create segment %s: %w", path, err)
	}
	return &Segment{path: path, file: file, fsync: fsync}, nil
}

// Name returns the file name of the segment, e.g. "3.log".
func (s *Segment) Name() string {
	return filepath.Base(s.path)
}

// Path returns the full path of the segment file.
func (s *Segment) Path() string {
	return s.path
}

// Size returns the current file length in bytes.
func (s *Segment) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat segment %s: %w", s.path, err)
	}
	return info.Size(), nil
}

// Append writes one record and returns the byte offset of the start of the
// value. That offset is what the index stores, so reads skip straight to
// the value without re-parsing the key.
func (s *Segment) Append(key, value []byte) (int64, error) {
	end, err := s.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to seek segment %s: %w", s.path, err)
	}

	// One buffered write per record keeps the partial-write window as
	// small as a single syscall allows.
	buf := make([]byte, 2*lenPrefixSize+len(key)+len(value))
	binary.BigEndian.PutUint64(buf[0:lenPrefixSize], uint64(len(key)))
	copy(buf[lenPrefixSize:], key)
	binary.BigEndian.PutUint64(buf[lenPrefixSize+len(key):], uint64(len(value)))
	copy(buf[2*lenPrefixSize+len(key):], value)

	if _, err := s.file.Write(buf); err != nil {
		return 0, fmt.Errorf("failed to append to segment %s: %w", s.path, err)
	}
	if s.fsync {
		if err := s.file.Sync(); err != nil {
			return 0, fmt.Errorf("failed to sync segment %s: %w", s.path, err)
		}
	}

	return end + 2*lenPrefixSize + int64(len(key)), nil
}

// ReadAt reads exactly length bytes starting at offset.
func (s *Segment) ReadAt(offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at offset %d of segment %s: %w", length, offset, s.path, err)
	}
	return buf, nil
}

// Sync flushes the segment to stable storage.
func (s *Segment) Sync() error {
	return s.file.Sync()
}

// Close releases the file handle. Required before renaming the file for
// cross-platform rename semantics.
func (s *Segment) Close() error {
	return s.file.Close()
}

// Truncate cuts the segment back to size bytes. Used to drop a partial
// trailing record detected during recovery.
func (s *Segment) Truncate(size int64) error {
	if err := s.file.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate segment %s to %d bytes: %w", s.path, size, err)
	}
	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek segment %s: %w", s.path, err)
	}
	return nil
}

// Records reads the whole file and parses it into records in file order.
// On a malformed tail it returns every record parsed so far, the byte
// length of the valid prefix, and ErrCorruptSegment; parsing stops at the
// first bad byte.
func (s *Segment) Records() ([]domain.Record, int64, error) {
	size, err := s.Size()
	if err != nil {
		return nil, 0, err
	}
	data := make([]byte, size)
	if size > 0 {
		if _, err := s.file.ReadAt(data, 0); err != nil {
			return nil, 0, fmt.Errorf("failed to read segment %s: %w", s.path, err)
		}
	}

	var records []domain.Record
	i := int64(0)
	for i < size {
		rec, next, ok := parseRecord(data, i)
		if !ok {
			return records, i, fmt.Errorf("%w: %s: malformed record at offset %d", ErrCorruptSegment, s.path, i)
		}
		records = append(records, rec)
		i = next
	}
	return records, i, nil
}

// parseRecord decodes one record starting at offset i. It reports false
// when the remaining bytes cannot hold a complete record.
func parseRecord(data []byte, i int64) (domain.Record, int64, bool) {
	var rec domain.Record
	size := int64(len(data))

	keyLen, ok := parseLen(data, i, size)
	if !ok {
		return rec, 0, false
	}
	i += lenPrefixSize
	rec.Key = domain.Point{Offset: i, Len: int(keyLen), Bytes: data[i : i+keyLen]}
	i += keyLen

	valueLen, ok := parseLen(data, i, size)
	if !ok {
		return rec, 0, false
	}
	i += lenPrefixSize
	rec.Value = domain.Point{Offset: i, Len: int(valueLen), Bytes: data[i : i+valueLen]}
	i += valueLen

	return rec, i, true
}

func parseLen(data []byte, i, size int64) (int64, bool) {
	if size-i < lenPrefixSize {
		return 0, false
	}
	n := binary.BigEndian.Uint64(data[i : i+lenPrefixSize])
	if n > uint64(size-i-lenPrefixSize) {
		return 0, false
	}
	return int64(n), true // #nosec G115 -- bounded by file size above
}

// segmentPath builds the path of segment id under dir, e.g. dir/7.log.
func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, strconv.FormatUint(id, 10)+SegmentSuffix)
}

// parseSegmentID extracts the numeric name from a segment file name.
func parseSegmentID(name string) (uint64, bool) {
	stem, found := strings.CutSuffix(name, SegmentSuffix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseUint(stem, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
