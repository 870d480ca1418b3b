package bitcask

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempSegment(t *testing.T) *Segment {
	t.Helper()
	dir := t.TempDir()
	seg, err := openSegment(filepath.Join(dir, "0.log"), false)
	if err != nil {
		t.Fatalf("openSegment failed: %v", err)
	}
	t.Cleanup(func() { _ = seg.Close() })
	return seg
}

func TestSegment_AppendReturnsValueOffset(t *testing.T) {
	seg := tempSegment(t)

	offset, err := seg.Append([]byte("Bob"), []byte("age: 23"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	// 8-byte key length + key + 8-byte value length precede the value.
	if want := int64(8 + 3 + 8); offset != want {
		t.Fatalf("expected value offset %d, got %d", want, offset)
	}

	value, err := seg.ReadAt(offset, len("age: 23"))
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(value) != "age: 23" {
		t.Errorf("expected 'age: 23', got '%s'", string(value))
	}

	// The second record starts where the first ended.
	offset2, err := seg.Append([]byte("Alice"), []byte("age: 18"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	first := int64(8 + 3 + 8 + 7)
	if want := first + 8 + 5 + 8; offset2 != want {
		t.Fatalf("expected value offset %d, got %d", want, offset2)
	}
}

func TestSegment_ReadAtShortRead(t *testing.T) {
	seg := tempSegment(t)

	if _, err := seg.Append([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	size, _ := seg.Size()
	if _, err := seg.ReadAt(size-1, 10); err == nil {
		t.Fatal("expected error reading past end of segment")
	}
}

func TestSegment_Records(t *testing.T) {
	seg := tempSegment(t)

	_, _ = seg.Append([]byte("a"), []byte("1"))
	_, _ = seg.Append([]byte("b"), []byte("22"))
	_, _ = seg.Append([]byte("a"), nil) // tombstone

	records, valid, err := seg.Records()
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	size, _ := seg.Size()
	if valid != size {
		t.Errorf("expected valid prefix %d, got %d", size, valid)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if !bytes.Equal(records[0].Key.Bytes, []byte("a")) || !bytes.Equal(records[0].Value.Bytes, []byte("1")) {
		t.Errorf("unexpected first record: %q=%q", records[0].Key.Bytes, records[0].Value.Bytes)
	}
	if !bytes.Equal(records[1].Value.Bytes, []byte("22")) {
		t.Errorf("unexpected second record value: %q", records[1].Value.Bytes)
	}
	if !records[2].IsTombstone() {
		t.Errorf("expected third record to be a tombstone")
	}

	// Value offsets in the parsed records line up with direct reads.
	got, err := seg.ReadAt(records[1].Value.Offset, records[1].Value.Len)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(got) != "22" {
		t.Errorf("expected '22' at parsed offset, got '%s'", string(got))
	}

	// Records restarts from the top on every call.
	again, _, err := seg.Records()
	if err != nil {
		t.Fatalf("second Records call failed: %v", err)
	}
	if len(again) != 3 {
		t.Errorf("expected 3 records on rescan, got %d", len(again))
	}
}

func TestSegment_RecordsTruncatedPrefix(t *testing.T) {
	seg := tempSegment(t)

	_, _ = seg.Append([]byte("good"), []byte("record"))
	complete, _ := seg.Size()

	// Fewer than 8 trailing bytes cannot hold a length prefix.
	if _, err := seg.file.Write([]byte{0, 0, 1}); err != nil {
		t.Fatal(err)
	}

	records, valid, err := seg.Records()
	if !errors.Is(err, ErrCorruptSegment) {
		t.Fatalf("expected ErrCorruptSegment, got %v", err)
	}
	if valid != complete {
		t.Errorf("expected valid prefix %d, got %d", complete, valid)
	}
	if len(records) != 1 {
		t.Errorf("expected the complete record to survive, got %d records", len(records))
	}
}

func TestSegment_RecordsDeclaredLengthPastEnd(t *testing.T) {
	seg := tempSegment(t)

	_, _ = seg.Append([]byte("good"), []byte("record"))
	complete, _ := seg.Size()

	// A full prefix declaring more bytes than the file holds.
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], 1<<30)
	if _, err := seg.file.Write(prefix[:]); err != nil {
		t.Fatal(err)
	}

	records, valid, err := seg.Records()
	if !errors.Is(err, ErrCorruptSegment) {
		t.Fatalf("expected ErrCorruptSegment, got %v", err)
	}
	if valid != complete {
		t.Errorf("expected valid prefix %d, got %d", complete, valid)
	}
	if len(records) != 1 {
		t.Errorf("expected the complete record to survive, got %d records", len(records))
	}
}

func TestSegment_NeverTruncatesOnOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")

	seg, err := openSegment(path, false)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = seg.Append([]byte("k"), []byte("v"))
	size, _ := seg.Size()
	_ = seg.Close()

	seg2, err := openSegment(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = seg2.Close() }()
	size2, _ := seg2.Size()
	if size2 != size {
		t.Fatalf("reopen changed segment size: %d != %d", size2, size)
	}
}

func TestSegment_NewSegmentRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := newSegment(path, false); err == nil {
		t.Fatal("expected newSegment to fail on an existing file")
	}
}

func TestParseSegmentID(t *testing.T) {
	tests := []struct {
		name string
		id   uint64
		ok   bool
	}{
		{"0.log", 0, true},
		{"42.log", 42, true},
		{"10.log", 10, true},
		{"log.merging", 0, false},
		{"x.log", 0, false},
		{"7.txt", 0, false},
	}
	for _, tt := range tests {
		id, ok := parseSegmentID(tt.name)
		if ok != tt.ok || id != tt.id {
			t.Errorf("parseSegmentID(%q) = (%d, %v), want (%d, %v)", tt.name, id, ok, tt.id, tt.ok)
		}
	}
}
