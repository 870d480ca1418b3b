package bitcask

import (
	"path/filepath"
	"testing"
)

func TestIndex_PutGetRemove(t *testing.T) {
	idx := newIndex()

	if _, ok := idx.Get([]byte("missing")); ok {
		t.Fatal("expected miss on empty index")
	}

	idx.Put([]byte("a"), Location{Offset: 16, Length: 3})
	loc, ok := idx.Get([]byte("a"))
	if !ok || loc.Offset != 16 || loc.Length != 3 {
		t.Fatalf("unexpected location: %+v, ok=%v", loc, ok)
	}
	if idx.Len() != 1 {
		t.Errorf("expected len 1, got %d", idx.Len())
	}

	idx.Remove([]byte("a"))
	if _, ok := idx.Get([]byte("a")); ok {
		t.Fatal("expected miss after remove")
	}
}

func TestIndex_TombstoneSentinel(t *testing.T) {
	idx := newIndex()
	idx.Put([]byte("gone"), tombstone())

	loc, ok := idx.Get([]byte("gone"))
	if !ok {
		t.Fatal("tombstone entry must stay visible in the index")
	}
	if !loc.IsTombstone() {
		t.Fatalf("expected tombstone sentinel, got %+v", loc)
	}
	if (Location{Offset: 16, Length: 3}).IsTombstone() {
		t.Error("live location misreported as tombstone")
	}
}

func TestIndex_RebuildLastInSegmentWins(t *testing.T) {
	dir := t.TempDir()
	seg, err := openSegment(filepath.Join(dir, "0.log"), false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = seg.Close() }()

	_, _ = seg.Append([]byte("a"), []byte("old"))
	_, _ = seg.Append([]byte("b"), []byte("kept"))
	wantOffset, _ := seg.Append([]byte("a"), []byte("new"))
	_, _ = seg.Append([]byte("c"), []byte("dead"))
	_, _ = seg.Append([]byte("c"), nil)

	idx := newIndex()
	count, err := idx.Rebuild(seg)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 records processed, got %d", count)
	}
	if idx.Len() != 3 {
		t.Errorf("expected 3 distinct keys, got %d", idx.Len())
	}

	loc, ok := idx.Get([]byte("a"))
	if !ok || loc.Offset != wantOffset || loc.Length != 3 {
		t.Fatalf("expected last record for 'a' at offset %d, got %+v", wantOffset, loc)
	}
	value, err := seg.ReadAt(loc.Offset, loc.Length)
	if err != nil {
		t.Fatal(err)
	}
	if string(value) != "new" {
		t.Errorf("expected 'new', got '%s'", string(value))
	}

	loc, ok = idx.Get([]byte("c"))
	if !ok || !loc.IsTombstone() {
		t.Fatalf("expected tombstone for 'c', got %+v, ok=%v", loc, ok)
	}
}
