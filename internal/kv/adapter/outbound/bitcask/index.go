package bitcask

import "github.com/guiyuanju/mossdb/internal/kv/domain"

// Location points at a value inside one segment: the byte offset of the
// value and its length. The zero Location is the tombstone sentinel.
type Location struct {
	Offset int64
	Length int
}

// IsTombstone reports whether the location is the deletion sentinel.
func (l Location) IsTombstone() bool {
	return l.Length == 0
}

// tombstone marks a key as deleted within one segment's index.
func tombstone() Location {
	return Location{}
}

// Index is the in-memory projection of one segment: the location of the
// last record per key. Its lifetime mirrors the segment's; it is rebuilt
// by replay on open and discarded when the segment is merged away.
type Index struct {
	entries map[string]Location
}

func newIndex() *Index {
	return &Index{entries: make(map[string]Location)}
}

// Get returns the location stored for key.
func (idx *Index) Get(key []byte) (Location, bool) {
	loc, ok := idx.entries[string(key)]
	return loc, ok
}

// Put records the location of key's latest record in this segment.
func (idx *Index) Put(key []byte, loc Location) {
	idx.entries[string(key)] = loc
}

// Remove drops key from the index.
func (idx *Index) Remove(key []byte) {
	delete(idx.entries, string(key))
}

// Len returns the number of distinct keys indexed.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Rebuild replays the segment's records in file order; a later record for
// the same key overwrites the earlier entry, so the index ends up holding
// the last record per key. Zero-length values insert the tombstone
// sentinel. Returns the number of records processed, for diagnostics.
func (idx *Index) Rebuild(seg *Segment) (int, error) {
	records, _, err := seg.Records()
	if err != nil {
		return 0, err
	}
	idx.replay(records)
	return len(records), nil
}

func (idx *Index) replay(records []domain.Record) {
	for _, rec := range records {
		if rec.IsTombstone() {
			idx.Put(rec.Key.Bytes, tombstone())
			continue
		}
		idx.Put(rec.Key.Bytes, Location{Offset: rec.Value.Offset, Length: rec.Value.Len})
	}
}

// each calls fn for every (key, location) entry. Iteration order is
// unspecified.
func (idx *Index) each(fn func(key string, loc Location)) {
	for key, loc := range idx.entries {
		fn(key, loc)
	}
}
