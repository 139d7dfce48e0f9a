package segment

// NoID is the reserved sentinel meaning "no segment" — spec §3 reserves
// id==0 for this purpose so segment ids fit the 24-bit namespace while
// still supporting an Option-like absence value.
const NoID uint32 = 0

// Header holds the per-segment metadata spec §3 defines. It never holds
// segment bytes itself; Pool owns the backing heap and vends scoped views.
type Header struct {
	id uint32

	writeOffset uint32
	liveBytes   int32
	liveItems   int32

	ttl uint32 // coarse seconds

	// prevSeg/nextSeg double-link this segment into exactly one of: the
	// free queue, or a TTL bucket's chain. Never both at once.
	prevSeg uint32
	nextSeg uint32

	createAt uint32 // coarse seconds
	mergeAt  uint32 // coarse seconds, stamped by mark-merged

	accessible bool
	evictable  bool
}

// ID returns the segment's stable identifier.
func (h *Header) ID() uint32 { return h.id }

// WriteOffset returns the byte offset of the next record to be appended.
func (h *Header) WriteOffset() uint32 { return h.writeOffset }

// LiveBytes returns the number of bytes currently occupied by live records.
func (h *Header) LiveBytes() int32 { return h.liveBytes }

// LiveItems returns the number of live records in the segment.
func (h *Header) LiveItems() int32 { return h.liveItems }

// TTL returns the coarse-second TTL this segment's chain was created for.
func (h *Header) TTL() uint32 { return h.ttl }

// SetTTL stamps the segment's TTL, done once when it becomes a chain head.
func (h *Header) SetTTL(ttl uint32) { h.ttl = ttl }

// PrevSeg returns the previous segment id in whichever chain this segment
// currently belongs to, or NoID.
func (h *Header) PrevSeg() uint32 { return h.prevSeg }

// NextSeg returns the next segment id in whichever chain this segment
// currently belongs to, or NoID.
func (h *Header) NextSeg() uint32 { return h.nextSeg }

// CreateAt returns the coarse-second timestamp this segment was allocated.
func (h *Header) CreateAt() uint32 { return h.createAt }

// MergeAt returns the coarse-second timestamp of the last merge pass that
// touched this segment as a destination.
func (h *Header) MergeAt() uint32 { return h.mergeAt }

// MarkMerged stamps mergeAt with the given coarse second. Called on a merge
// destination segment once pruning and compaction have run.
func (h *Header) MarkMerged(now uint32) { h.mergeAt = now }

// Accessible reports whether the segment is reachable from the index and a
// TTL chain.
func (h *Header) Accessible() bool { return h.accessible }

// SetAccessible sets the accessible flag.
func (h *Header) SetAccessible(v bool) { h.accessible = v }

// Evictable reports whether the segment is an eligible eviction candidate.
func (h *Header) Evictable() bool { return h.evictable }

// SetEvictable sets the evictable flag.
func (h *Header) SetEvictable(v bool) { h.evictable = v }

// CanEvict reports whether the segment may be chosen as an eviction
// candidate under ordinary (non-expiration) eviction. Spec §3: accessible
// AND evictable AND has a next segment in its chain — expiration bypasses
// this check and clears chain heads directly.
func (h *Header) CanEvict() bool {
	return h.accessible && h.evictable && h.nextSeg != NoID
}

func (h *Header) incrItem(bytes int32) {
	h.writeOffset += uint32(bytes)
	h.liveBytes += bytes
	h.liveItems++
}

func (h *Header) decrItem(bytes int32) {
	h.liveBytes -= bytes
	h.liveItems--
}

func (h *Header) reset(id uint32, createAt uint32) {
	h.id = id
	h.writeOffset = 0
	h.liveBytes = 0
	h.liveItems = 0
	h.ttl = 0
	h.prevSeg = NoID
	h.nextSeg = NoID
	h.createAt = createAt
	h.mergeAt = 0
	h.accessible = false
	h.evictable = false
}
