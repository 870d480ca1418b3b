package domain

// Point is one field of a record as it sits in a segment file: the byte
// offset of the field's payload, its length, and the decoded bytes.
type Point struct {
	Offset int64
	Len    int
	Bytes  []byte
}

// Record is a single key/value entry parsed out of a segment file. A record
// whose value has length zero is a tombstone for its key.
type Record struct {
	Key   Point
	Value Point
}

// IsTombstone reports whether the record marks its key as deleted.
func (r Record) IsTombstone() bool {
	return r.Value.Len == 0
}

// SegmentDump is the diagnostic view of one segment: every record it holds
// in file order, superseded and tombstoned entries included.
type SegmentDump struct {
	Name    string
	Records []Record
}
