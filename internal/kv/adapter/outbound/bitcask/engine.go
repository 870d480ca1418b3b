package bitcask

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/anthanhphan/gosdk/logger"

	"github.com/guiyuanju/mossdb/internal/kv/config"
	"github.com/guiyuanju/mossdb/internal/kv/domain"
	"github.com/guiyuanju/mossdb/internal/kv/port"
)

// segmentIndex pairs a segment with its index so the two lists can never
// drift out of position.
type segmentIndex struct {
	seg *Segment
	idx *Index
}

// Engine implements port.Storage on an ordered list of (segment, index)
// pairs, newest at the tail. The tail segment is the only one accepting
// writes; lookups scan indexes newest to oldest and the first hit wins.
//
// The engine is single-writer and not safe for concurrent use. Every
// operation, merges included, runs to completion on the caller's
// goroutine.
type Engine struct {
	dir      string
	limit    int64
	maxSegs  int
	fsync    bool
	pairs    []*segmentIndex
	activeID uint64
	closed   bool
}

var _ port.Storage = (*Engine)(nil)

// Open scans cfg.DataDir for segment files, opens them in numeric name
// order and rebuilds one index per segment by full replay. A segment with
// a partial trailing record is truncated to its last complete record. If
// the directory holds no segments, segment 0 is created.
func Open(cfg config.EngineConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	e := &Engine{
		dir:     filepath.Clean(cfg.DataDir),
		limit:   cfg.SegmentSizeLimit,
		maxSegs: cfg.MaxSegments,
		fsync:   cfg.FSync,
	}
	if e.limit <= 0 {
		e.limit = config.DefaultSegmentSizeLimit
	}
	if e.maxSegs <= 0 {
		e.maxSegs = config.DefaultMaxSegments
	}

	// A leftover merge output means a previous merge died before its
	// rename. The source segments are still intact, so the safe move is
	// to discard the partial result and redo the merge later.
	mergePath := filepath.Join(e.dir, MergeFileName)
	if _, err := os.Stat(mergePath); err == nil {
		logger.Warnw("Removing stale merge output", "path", mergePath)
		if err := os.Remove(mergePath); err != nil {
			return nil, fmt.Errorf("failed to remove stale merge output: %w", err)
		}
	}

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data dir %s: %w", e.dir, err)
	}

	var ids []uint64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := parseSegmentID(entry.Name())
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	records := 0
	for _, id := range ids {
		seg, err := openSegment(segmentPath(e.dir, id), e.fsync)
		if err != nil {
			e.closeAll()
			return nil, err
		}
		n, err := e.load(seg)
		if err != nil {
			_ = seg.Close()
			e.closeAll()
			return nil, err
		}
		records += n
		e.activeID = id
	}

	if len(e.pairs) == 0 {
		if err := e.grow(); err != nil {
			return nil, err
		}
	}

	keys := 0
	for _, p := range e.pairs {
		keys += p.idx.Len()
	}
	logger.Infow("Storage engine opened",
		"dir", e.dir,
		"segments", len(e.pairs),
		"records", records,
		"keys", keys)

	return e, nil
}

// load rebuilds an index for seg and appends the pair. A corrupt tail is
// treated as a record that never finished writing: the file is truncated
// to its valid prefix and replay keeps what survived.
func (e *Engine) load(seg *Segment) (int, error) {
	records, valid, err := seg.Records()
	if err != nil {
		if !errors.Is(err, ErrCorruptSegment) {
			return 0, err
		}
		if terr := seg.Truncate(valid); terr != nil {
			return 0, terr
		}
		logger.Warnw("Truncated partial record tail during replay",
			"segment", seg.Name(), "valid_bytes", valid)
	}
	idx := newIndex()
	idx.replay(records)
	e.pairs = append(e.pairs, &segmentIndex{seg: seg, idx: idx})
	return len(records), nil
}

// grow starts a new active segment named one past the highest existing
// numeric name, with a fresh empty index. Shared by Set's rotation check
// and by Open on an empty directory.
func (e *Engine) grow() error {
	var next uint64
	if len(e.pairs) > 0 {
		next = e.activeID + 1
	}
	seg, err := newSegment(segmentPath(e.dir, next), e.fsync)
	if err != nil {
		return err
	}
	e.pairs = append(e.pairs, &segmentIndex{seg: seg, idx: newIndex()})
	e.activeID = next
	logger.Infow("New active segment", "segment", seg.Name())
	return nil
}

func (e *Engine) active() *segmentIndex {
	return e.pairs[len(e.pairs)-1]
}

// Set appends (key, value) to the active segment and updates its index.
// The active segment rotates first when it has reached the size limit, and
// a rotation that pushes the segment count past the threshold merges the
// two oldest segments before the new write lands.
func (e *Engine) Set(ctx context.Context, key, value []byte) error {
	if e.closed {
		return ErrClosed
	}
	if len(value) == 0 {
		return ErrEmptyValue
	}

	size, err := e.active().seg.Size()
	if err != nil {
		return err
	}
	if size >= e.limit {
		if err := e.grow(); err != nil {
			return err
		}
	}

	if len(e.pairs) > e.maxSegs {
		if err := e.compact(); err != nil {
			return err
		}
	}

	active := e.active()
	offset, err := active.seg.Append(key, value)
	if err != nil {
		return err
	}
	active.idx.Put(key, Location{Offset: offset, Length: len(value)})
	return nil
}

// Get scans segments newest to oldest and returns the value at the first
// index hit. A tombstone hit means the key is deleted: it masks any value
// in older segments, so the scan stops there.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}
	for i := len(e.pairs) - 1; i >= 0; i-- {
		loc, ok := e.pairs[i].idx.Get(key)
		if !ok {
			continue
		}
		if loc.IsTombstone() {
			return nil, port.ErrKeyNotFound
		}
		return e.pairs[i].seg.ReadAt(loc.Offset, loc.Length)
	}
	return nil, port.ErrKeyNotFound
}

// Del appends a tombstone for key to the active segment. Deleting an
// absent key is a no-op.
func (e *Engine) Del(ctx context.Context, key []byte) error {
	if e.closed {
		return ErrClosed
	}
	if _, err := e.Get(ctx, key); err != nil {
		if errors.Is(err, port.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	active := e.active()
	if _, err := active.seg.Append(key, nil); err != nil {
		return err
	}
	active.idx.Put(key, tombstone())
	return nil
}

// Dump returns every record of every segment in file order, superseded and
// tombstoned entries included.
func (e *Engine) Dump(ctx context.Context) ([]domain.SegmentDump, error) {
	if e.closed {
		return nil, ErrClosed
	}
	dumps := make([]domain.SegmentDump, 0, len(e.pairs))
	for _, p := range e.pairs {
		records, _, err := p.seg.Records()
		if err != nil {
			return nil, err
		}
		dumps = append(dumps, domain.SegmentDump{Name: p.seg.Name(), Records: records})
	}
	return dumps, nil
}

// Segments returns the current segment count.
func (e *Engine) Segments() int {
	return len(e.pairs)
}

// Close releases every segment file handle.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.closeAll()
}

func (e *Engine) closeAll() error {
	var firstErr error
	for _, p := range e.pairs {
		if err := p.seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.pairs = nil
	return firstErr
}
