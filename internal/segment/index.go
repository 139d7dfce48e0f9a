package segment

// Index is the subset of hash-index operations the segment pool needs
// during compaction, merging, pruning, and teardown. Segments never holds
// a concrete hashindex reference directly — the engine wires a concrete
// implementation in at each call site — which keeps the segment and
// hashindex packages free of an import cycle (hashindex in turn needs to
// dereference segment bytes to verify keys on lookup).
type Index interface {
	// IsLive reports whether the record at (segID, offset) for key is still
	// the index's current entry for that key, i.e. has not been replaced or
	// already removed. Used to distinguish live from dead records during a
	// segment walk.
	IsLive(key []byte, segID uint32, offset uint32) bool

	// Relink atomically rewrites the index entry for key from
	// (oldSeg, oldOffset) to (newSeg, newOffset). Returns an error if the
	// old slot no longer matches the expected location.
	Relink(key []byte, oldSeg uint32, oldOffset uint32, newSeg uint32, newOffset uint32) error

	// Freq returns the frequency counter recorded for the record at
	// (segID, offset) for key, and whether a matching entry was found.
	Freq(key []byte, segID uint32, offset uint32) (uint8, bool)

	// Evict removes the index entry for key at (segID, offset) as part of
	// eviction. Returns whether an entry was actually removed.
	Evict(key []byte, segID uint32, offset uint32) bool

	// Expire removes the index entry for key at (segID, offset) as part of
	// TTL expiration. Returns whether an entry was actually removed.
	Expire(key []byte, segID uint32, offset uint32) bool
}
