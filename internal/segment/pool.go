// Package segment implements the slab-like segment pool: a fixed byte heap
// carved into equal fixed-size segments, threaded through a free queue and
// (by the ttlbucket package, above it) TTL chains. It owns compaction,
// merge-copy, prune, and segment teardown — the heaviest share of the
// engine's logic.
package segment

import (
	"go.uber.org/zap"

	"github.com/iamNilotpal/segcache/pkg/datapool"
	segerrors "github.com/iamNilotpal/segcache/pkg/errors"
)

// Config configures a new Pool.
type Config struct {
	// SegmentSize is the fixed byte size of every segment.
	SegmentSize uint32
	// HeapSize is the total heap capacity; SegmentCount = HeapSize/SegmentSize.
	HeapSize uint64
	// ItemMagic mirrors the engine-wide builder option, controlling how
	// records are sized and parsed within segment data.
	ItemMagic bool
	// Backing optionally supplies the heap's byte storage. When nil, New
	// allocates a plain volatile datapool.Memory region. Passing a
	// datapool.File lets the pool's bytes be recovered from (and persisted
	// back to) a heap image on disk.
	Backing datapool.Pool
	Logger  *zap.SugaredLogger
}

// Pool owns the byte heap and the header array, and implements the slab
// allocator operations from spec §4.1: free queue, scoped mutable segment
// views, compaction, and merge-copy.
type Pool struct {
	log *zap.SugaredLogger

	segmentSize uint32
	itemMagic   bool

	backing datapool.Pool
	headers []Header
	heap    []byte

	freeHead uint32
	freeLen  int
}

// New allocates the full heap and header array up front; segments start
// zeroed and linked into the free queue from id N down to id 1 so the
// first PopFree returns id 1.
func New(cfg Config) (*Pool, error) {
	if cfg.SegmentSize == 0 {
		return nil, segerrors.NewEngineError(nil, segerrors.ErrorCodeInvalidInput, "segment size must be positive")
	}

	count := int(cfg.HeapSize / uint64(cfg.SegmentSize))
	if count == 0 {
		return nil, segerrors.NewEngineError(nil, segerrors.ErrorCodeInvalidInput, "heap size smaller than one segment")
	}
	// 24-bit id namespace (spec §3); id 0 is reserved for NoID.
	if count > (1<<24)-1 {
		return nil, segerrors.NewEngineError(nil, segerrors.ErrorCodeInvalidInput, "segment count exceeds 24-bit id namespace")
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	heapSize := uint64(count) * uint64(cfg.SegmentSize)

	backing := cfg.Backing
	if backing == nil {
		backing = datapool.NewMemory(int(heapSize))
	} else if uint64(backing.Len()) != heapSize {
		return nil, segerrors.NewEngineError(nil, segerrors.ErrorCodeInvalidInput, "backing datapool size does not match heap size").
			WithDetail("want", heapSize).WithDetail("got", backing.Len())
	}

	p := &Pool{
		log:         log,
		segmentSize: cfg.SegmentSize,
		itemMagic:   cfg.ItemMagic,
		backing:     backing,
		headers:     make([]Header, count+1), // index 0 unused (NoID)
		heap:        backing.AsMutSlice(),
		freeHead:    NoID,
		freeLen:     0,
	}

	for id := count; id >= 1; id-- {
		p.headers[id].reset(uint32(id), 0)
		p.pushFreeHead(uint32(id))
	}

	log.Infow("segment pool initialized", "segments", count, "segment_size", cfg.SegmentSize)
	return p, nil
}

// Flush persists the heap to whatever backing datapool.Pool it was built
// with, a no-op when the pool was built over the default volatile backing.
// Segment headers (free queue, TTL chains, item counts) are not part of the
// persisted image; only the raw record bytes are saved.
func (p *Pool) Flush() error {
	return p.backing.Flush()
}

// SegmentCount returns the total number of segments in the pool.
func (p *Pool) SegmentCount() int { return len(p.headers) - 1 }

// SegmentSize returns the fixed byte size of every segment.
func (p *Pool) SegmentSize() uint32 { return p.segmentSize }

// FreeCount returns how many segments currently sit on the free queue.
func (p *Pool) FreeCount() int { return p.freeLen }

// Header returns the header for id without bounds-panicking on a bad id;
// callers that need a hard guarantee should use GetMut instead.
func (p *Pool) Header(id uint32) *Header {
	if id == NoID || int(id) >= len(p.headers) {
		return nil
	}
	return &p.headers[id]
}

func (p *Pool) dataOf(id uint32) []byte {
	size := uint64(p.segmentSize)
	start := uint64(id-1) * size
	return p.heap[start : start+size]
}

// RecordAt returns the bytes of segment id starting at offset, extending
// through the end of that segment's backing slice. Implements
// hashindex.SegmentReader, letting the hash index verify tag matches and
// materialize Items without either package importing the other's types.
func (p *Pool) RecordAt(id uint32, offset uint32) ([]byte, bool) {
	if id == NoID || int(id) >= len(p.headers) {
		return nil, false
	}
	data := p.dataOf(id)
	if offset >= uint32(len(data)) {
		return nil, false
	}
	return data[offset:], true
}

// RemoveItemAt decrements the live counters for the record at (id, offset),
// satisfying the other half of hashindex.SegmentReader. It is the
// Pool-level counterpart of Segment.RemoveItemAt, used by the hash index
// when a replace displaces a prior record without going through a
// caller-held *Segment view.
func (p *Pool) RemoveItemAt(id uint32, offset uint32) {
	seg, err := p.GetMut(id)
	if err != nil {
		p.log.Warnw("remove_item_at on invalid segment", "segment_id", id, "offset", offset, "error", err)
		return
	}
	seg.RemoveItemAt(offset)
}

// pushFreeHead links id onto the front of the free queue without resetting
// its header — callers that need a fresh header call reset first.
func (p *Pool) pushFreeHead(id uint32) {
	h := &p.headers[id]
	h.prevSeg = NoID
	h.nextSeg = p.freeHead
	if p.freeHead != NoID {
		p.headers[p.freeHead].prevSeg = id
	}
	p.freeHead = id
	p.freeLen++
}

// Unlink removes id from whatever doubly-linked chain it currently belongs
// to (free queue or a TTL chain), fixing up its neighbors' pointers. It
// does not know or care which chain id was in; the caller is responsible
// for updating any external head pointer (e.g. a TTL bucket's head) if id
// was that chain's head.
func (p *Pool) Unlink(id uint32) {
	h := &p.headers[id]
	prev, next := h.prevSeg, h.nextSeg

	if prev != NoID {
		p.headers[prev].nextSeg = next
	}
	if next != NoID {
		p.headers[next].prevSeg = prev
	}

	h.prevSeg = NoID
	h.nextSeg = NoID
}

// LinkFront pushes id onto the front of the chain whose head pointer is
// *head, updating id's next pointer, the old head's prev pointer, and
// *head itself. Exported so ttlbucket can maintain its own per-bucket
// chains using the same linkage fields as the free queue.
func (p *Pool) LinkFront(id uint32, head *uint32) {
	h := &p.headers[id]
	h.prevSeg = NoID
	h.nextSeg = *head
	if *head != NoID {
		p.headers[*head].prevSeg = id
	}
	*head = id
}

// PopFree dequeues a segment from the free queue, resets its header, stamps
// create_at, and zeroes its data. Returns (NoID, false) if the pool is
// exhausted.
func (p *Pool) PopFree(now uint32) (uint32, bool) {
	if p.freeHead == NoID {
		return NoID, false
	}

	id := p.freeHead
	h := &p.headers[id]
	p.freeHead = h.nextSeg
	if p.freeHead != NoID {
		p.headers[p.freeHead].prevSeg = NoID
	}
	p.freeLen--

	h.reset(id, now)
	h.accessible = true
	clear(p.dataOf(id))
	return id, true
}

// PushFree unlinks id from whatever chain it is in and pushes it as the
// new free-queue head, clearing its accessible and evictable flags (Clear
// has usually cleared them already).
func (p *Pool) PushFree(id uint32) {
	h := &p.headers[id]
	p.Unlink(id)
	h.accessible = false
	h.evictable = false
	p.pushFreeHead(id)
}

// Segment is a scoped mutable view into one segment's header and data,
// vended by GetMut/GetMutPair. It carries the pool's item-format settings
// so record parsing is consistent without a back-reference to Pool.
type Segment struct {
	header    *Header
	data      []byte
	itemMagic bool
}

// ID returns the segment's id.
func (s *Segment) ID() uint32 { return s.header.id }

// Header returns the segment's header for direct field access.
func (s *Segment) Header() *Header { return s.header }

// Data returns the full backing byte slice for the segment (length
// segment_size). Bytes at or beyond WriteOffset are unused; they are zero
// until the segment is first written, but compaction leaves stale bytes
// behind its new WriteOffset.
func (s *Segment) Data() []byte { return s.data }

// GetMut returns a scoped mutable view of segment id.
func (p *Pool) GetMut(id uint32) (*Segment, error) {
	if id == NoID || int(id) >= len(p.headers) {
		return nil, segerrors.NewEngineError(nil, segerrors.ErrorCodeInvalidInput, "invalid segment id").WithOperation("get_mut")
	}
	return &Segment{header: &p.headers[id], data: p.dataOf(id), itemMagic: p.itemMagic}, nil
}

// GetMutPair returns disjoint mutable views of two distinct segments,
// needed by merge/copy operations that move bytes between a destination
// and a source segment simultaneously. Fails if a==b.
func (p *Pool) GetMutPair(a, b uint32) (*Segment, *Segment, error) {
	if a == b {
		return nil, nil, segerrors.NewEngineError(nil, segerrors.ErrorCodeInvalidInput, "cannot pair a segment with itself").WithOperation("get_mut_pair")
	}
	sa, err := p.GetMut(a)
	if err != nil {
		return nil, nil, err
	}
	sb, err := p.GetMut(b)
	if err != nil {
		return nil, nil, err
	}
	return sa, sb, nil
}
