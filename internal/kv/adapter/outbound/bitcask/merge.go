package bitcask

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthanhphan/gosdk/logger"
)

// merger consolidates a run of segments, oldest first, into one result
// segment holding only the live value per key. Entries superseded by a
// later segment in the run and tombstones are dropped; a tombstone here is
// a final deletion because nothing older than the run survives.
type merger struct {
	sources []*segmentIndex
	out     *Segment
	outIdx  *Index
}

// newMerger re-opens the source segments and rebuilds an index for each
// independently of the engine's live state, then truncate-recreates the
// result file at outPath.
func newMerger(paths []string, outPath string) (*merger, error) {
	m := &merger{}
	for _, p := range paths {
		seg, err := openSegment(p, false)
		if err != nil {
			m.close()
			return nil, err
		}
		idx := newIndex()
		if _, err := idx.Rebuild(seg); err != nil {
			_ = seg.Close()
			m.close()
			return nil, err
		}
		m.sources = append(m.sources, &segmentIndex{seg: seg, idx: idx})
	}

	if _, err := os.Stat(outPath); err == nil {
		logger.Warnw("Merge output already exists, deleting", "path", outPath)
		if err := os.Remove(outPath); err != nil {
			m.close()
			return nil, fmt.Errorf("failed to remove old merge output: %w", err)
		}
	}
	out, err := openSegment(outPath, false)
	if err != nil {
		m.close()
		return nil, err
	}
	m.out = out
	m.outIdx = newIndex()
	return m, nil
}

// merge copies every entry that is neither superseded within the run nor a
// tombstone into the result segment, recording the new locations. The
// result is synced before returning so the caller can rename it safely.
func (m *merger) merge() error {
	for i, src := range m.sources {
		var copyErr error
		src.idx.each(func(key string, loc Location) {
			if copyErr != nil {
				return
			}
			for _, later := range m.sources[i+1:] {
				if _, ok := later.idx.Get([]byte(key)); ok {
					return
				}
			}
			if loc.IsTombstone() {
				return
			}
			value, err := src.seg.ReadAt(loc.Offset, loc.Length)
			if err != nil {
				copyErr = err
				return
			}
			offset, err := m.out.Append([]byte(key), value)
			if err != nil {
				copyErr = err
				return
			}
			m.outIdx.Put([]byte(key), Location{Offset: offset, Length: len(value)})
		})
		if copyErr != nil {
			return copyErr
		}
	}
	return m.out.Sync()
}

// close releases every handle the merger holds.
func (m *merger) close() {
	for _, src := range m.sources {
		_ = src.seg.Close()
	}
	if m.out != nil {
		_ = m.out.Close()
	}
}

// compact merges the two oldest segments into one and splices the result
// into their place.
//
// The swap is rename-first: the synced result atomically replaces the
// oldest segment's file, and only then is the second source file removed.
// A crash before the rename leaves the old segment set fully valid (Open
// discards a stale merge output); a crash between rename and remove leaves
// the merged oldest plus the untouched second segment, and replaying both
// on the next Open reconstructs the same logical state.
func (e *Engine) compact() error {
	first, second := e.pairs[0], e.pairs[1]
	firstPath := first.seg.Path()
	secondPath := second.seg.Path()
	mergePath := filepath.Join(e.dir, MergeFileName)

	logger.Infow("Merging oldest segments",
		"first", first.seg.Name(), "second", second.seg.Name())

	m, err := newMerger([]string{firstPath, secondPath}, mergePath)
	if err != nil {
		return err
	}
	if err := m.merge(); err != nil {
		m.close()
		return err
	}

	// All handles on the files being swapped must be closed before the
	// rename for cross-platform rename semantics.
	m.close()
	if err := first.seg.Close(); err != nil {
		return fmt.Errorf("failed to close segment %s: %w", first.seg.Name(), err)
	}
	if err := second.seg.Close(); err != nil {
		return fmt.Errorf("failed to close segment %s: %w", second.seg.Name(), err)
	}

	if err := os.Rename(mergePath, firstPath); err != nil {
		return fmt.Errorf("failed to swap in merge output: %w", err)
	}
	if err := os.Remove(secondPath); err != nil {
		return fmt.Errorf("failed to remove merged segment %s: %w", secondPath, err)
	}

	merged, err := openSegment(firstPath, e.fsync)
	if err != nil {
		return err
	}

	// The merger's index already points into the renamed file; reuse it.
	e.pairs[0] = &segmentIndex{seg: merged, idx: m.outIdx}
	e.pairs = append(e.pairs[:1], e.pairs[2:]...)

	logger.Infow("Merge finished",
		"segment", merged.Name(), "live_keys", m.outIdx.Len(), "segments", len(e.pairs))
	return nil
}
