package hashindex

// SegmentReader is the minimal read-only view of segment storage the hash
// index needs: enough bytes to parse a record's header and key so a tag
// match can be verified against the full key, and enough to build the
// Item returned on a successful lookup. Implemented by internal/segment's
// Pool. Kept as a small local interface, rather than importing
// internal/segment directly, so neither package depends on the other's
// concrete types — segment.Index is the mirror image of this relationship.
type SegmentReader interface {
	// RecordAt returns the bytes of segment segID starting at byte offset
	// offset, extending through the end of that segment's backing slice,
	// and whether segID/offset currently address real segment storage.
	RecordAt(segID uint32, offset uint32) ([]byte, bool)

	// RemoveItemAt decrements the live counters for the record at
	// (segID, offset). Called by Insert when a replace displaces a prior
	// record: the index drops its entry immediately, and the segment's
	// byte accounting follows immediately too, even though the physical
	// bytes aren't reclaimed until the segment is next compacted.
	RemoveItemAt(segID uint32, offset uint32)
}
