package eviction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iamNilotpal/segcache/internal/item"
	"github.com/iamNilotpal/segcache/internal/segment"
	"github.com/iamNilotpal/segcache/internal/ttlbucket"
	"github.com/iamNilotpal/segcache/pkg/clock"
	"github.com/iamNilotpal/segcache/pkg/options"
)

var errNoMatch = errors.New("no matching index entry")

// fakeIndex is a minimal stand-in for the hash index shared across this
// package's tests.
type fakeIndex struct {
	live map[string]struct{ seg, offset uint32 }
	freq map[string]uint8
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		live: make(map[string]struct{ seg, offset uint32 }),
		freq: make(map[string]uint8),
	}
}

func (f *fakeIndex) put(key string, seg, offset uint32, freq uint8) {
	f.live[key] = struct{ seg, offset uint32 }{seg, offset}
	f.freq[key] = freq
}

func (f *fakeIndex) IsLive(key []byte, segID uint32, offset uint32) bool {
	e, ok := f.live[string(key)]
	return ok && e.seg == segID && e.offset == offset
}

func (f *fakeIndex) Relink(key []byte, oldSeg uint32, oldOffset uint32, newSeg uint32, newOffset uint32) error {
	if !f.IsLive(key, oldSeg, oldOffset) {
		return errNoMatch
	}
	f.live[string(key)] = struct{ seg, offset uint32 }{newSeg, newOffset}
	return nil
}

func (f *fakeIndex) Freq(key []byte, segID uint32, offset uint32) (uint8, bool) {
	fr, ok := f.freq[string(key)]
	return fr, ok
}

func (f *fakeIndex) Evict(key []byte, segID uint32, offset uint32) bool {
	if !f.IsLive(key, segID, offset) {
		return false
	}
	delete(f.live, string(key))
	delete(f.freq, string(key))
	return true
}

func (f *fakeIndex) Expire(key []byte, segID uint32, offset uint32) bool {
	return f.Evict(key, segID, offset)
}

func newTestRig(t *testing.T, segmentSize uint32, count uint64) (*segment.Pool, *ttlbucket.TtlBuckets, *fakeIndex, *clock.Coarse) {
	t.Helper()
	pool, err := segment.New(segment.Config{SegmentSize: segmentSize, HeapSize: segmentSize * count})
	require.NoError(t, err)
	idx := newFakeIndex()
	clk := clock.New()
	tb := ttlbucket.New(ttlbucket.Config{Pool: pool, Index: idx, Clock: clk})
	return pool, tb, idx, clk
}

func writeRecord(t *testing.T, pool *segment.Pool, idx *fakeIndex, segID uint32, buf []byte, key, value string, freq uint8) uint32 {
	t.Helper()
	seg, err := pool.GetMut(segID)
	require.NoError(t, err)
	offset := seg.Header().WriteOffset() - uint32(len(buf))
	item.Encode(buf, []byte(key), []byte(value), nil, false)
	idx.put(key, segID, offset, freq)
	return offset
}

func TestNonePolicyAlwaysFails(t *testing.T) {
	p := New(Config{}, options.EvictionOptions{Kind: options.EvictionNone})
	require.Error(t, p.Evict())
}

func TestRandomPolicyEvictsOnlyCanEvictSegments(t *testing.T) {
	// One record per segment (size 16 == segment size) forces every
	// Reserve past the first to roll over, so the chain actually grows
	// instead of packing all three records into a single segment.
	pool, tb, idx, _ := newTestRig(t, 16, 3)
	size := item.Size(1, 1, 0, false)

	var middle uint32
	for i := 0; i < 3; i++ {
		key := string(rune('a' + i))
		segID, buf, err := tb.Reserve(key, 100, size)
		require.NoError(t, err)
		writeRecord(t, pool, idx, segID, buf, key, "v", 1)
		if i == 1 {
			middle = segID
		}
	}

	// Of the three chained segments, only the middle one satisfies
	// CanEvict: the first (head) is the active write target, and the last
	// (tail) has no next segment to chain through.
	p := New(Config{Pool: pool, Buckets: tb, Index: idx}, options.EvictionOptions{Kind: options.EvictionRandom})
	require.NoError(t, p.Evict())
	require.Equal(t, 1, pool.FreeCount())
	require.False(t, pool.Header(middle).Accessible())
}

func TestRandomPolicyFailsWhenNothingEvictable(t *testing.T) {
	pool, tb, idx, _ := newTestRig(t, 1024, 4)
	size := item.Size(1, 1, 0, false)

	segID, buf, err := tb.Reserve("a", 5, size)
	require.NoError(t, err)
	writeRecord(t, pool, idx, segID, buf, "a", "1", 1)

	p := New(Config{Pool: pool, Buckets: tb, Index: idx}, options.EvictionOptions{Kind: options.EvictionRandom})
	require.Error(t, p.Evict())
}

func TestRandomFifoPolicyEvictsFromBucketChain(t *testing.T) {
	// As above: one record per segment forces a real multi-segment chain.
	pool, tb, idx, _ := newTestRig(t, 16, 3)
	size := item.Size(1, 1, 0, false)

	for i := 0; i < 3; i++ {
		key := string(rune('a' + i))
		segID, buf, err := tb.Reserve(key, 100, size)
		require.NoError(t, err)
		writeRecord(t, pool, idx, segID, buf, key, "v", 1)
	}

	p := New(Config{Pool: pool, Buckets: tb, Index: idx}, options.EvictionOptions{Kind: options.EvictionRandomFifo})
	require.NoError(t, p.Evict())
	require.Equal(t, 1, pool.FreeCount())
}

func TestMergePolicyRequiresThreeSegmentChain(t *testing.T) {
	pool, tb, idx, clk := newTestRig(t, 256, 4)
	size := item.Size(1, 1, 0, false)

	segID, buf, err := tb.Reserve("a", 100, size)
	require.NoError(t, err)
	writeRecord(t, pool, idx, segID, buf, "a", "v", 1)

	p := New(Config{Pool: pool, Buckets: tb, Index: idx, Clock: clk},
		options.EvictionOptions{Kind: options.EvictionMerge, Merge: options.MergeOptions{
			TargetRatio: 0.6, CompactRatio: 0.8, MaxMerge: 10, NMerge: 3, StopRatio: 0.9,
		}})
	require.Error(t, p.Evict())
}

// fillSegment writes n records of size bytes each directly into id via the
// pool, bypassing ttlbucket.Reserve so the test controls occupancy exactly.
func fillSegment(t *testing.T, pool *segment.Pool, idx *fakeIndex, id uint32, n int, prefix string) {
	t.Helper()
	size := item.Size(4, 1, 0, false)
	seg, err := pool.GetMut(id)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		key := prefix + string(rune('0'+i))
		_, buf := seg.AllocItem(size)
		offset := seg.Header().WriteOffset() - uint32(size)
		item.Encode(buf, []byte(key), []byte("v"), nil, false)
		idx.put(key, id, offset, 1)
	}
}

func TestMergePolicyDrainsSourcesIntoDestination(t *testing.T) {
	// Segments in a merge chain are always displaced, already-evictable
	// segments — the literal chain head is the actively-written segment
	// and is never itself evictable (spec §4.3), so this test builds the
	// chain directly via the pool rather than through ttlbucket.Reserve,
	// the way a rotated next_to_merge cursor would actually find it.
	pool, err := segment.New(segment.Config{SegmentSize: 64, HeapSize: 64 * 4})
	require.NoError(t, err)
	idx := newFakeIndex()
	clk := clock.New()
	now := clk.Recent()

	dstID, ok := pool.PopFree(now)
	require.True(t, ok)
	src1ID, ok := pool.PopFree(now)
	require.True(t, ok)
	src2ID, ok := pool.PopFree(now)
	require.True(t, ok)
	tailID, ok := pool.PopFree(now)
	require.True(t, ok)

	// Chain: dst -> src1 -> src2 -> tail (tail is never itself touched; it
	// only needs to exist so src2.CanEvict() sees a non-nil next segment).
	var head uint32 = segment.NoID
	pool.LinkFront(tailID, &head)
	pool.LinkFront(src2ID, &head)
	pool.LinkFront(src1ID, &head)
	pool.LinkFront(dstID, &head)

	for _, id := range []uint32{dstID, src1ID, src2ID} {
		pool.Header(id).SetAccessible(true)
		pool.Header(id).SetEvictable(true)
	}

	fillSegment(t, pool, idx, dstID, 1, "d")   // 16/64 bytes, room to absorb.
	fillSegment(t, pool, idx, src1ID, 4, "s1") // 64/64, fully occupied.
	fillSegment(t, pool, idx, src2ID, 4, "s2") // never reached; dst fills first.
	require.Equal(t, 0, pool.FreeCount())

	m := &merge{
		pool: pool, index: idx, clock: clk,
		opts: options.MergeOptions{TargetRatio: 1.0 / 3.0, CompactRatio: 0.8, MaxMerge: 3, NMerge: 10, StopRatio: 0.99},
	}

	require.Equal(t, 3, m.chainLen(dstID))

	next, err := m.mergeChain(dstID)
	require.NoError(t, err)
	require.Equal(t, src2ID, next)
	require.Equal(t, 1, pool.FreeCount())
	require.Equal(t, pool.SegmentSize(), uint32(pool.Header(dstID).LiveBytes()))
}

// twoSegmentChain builds a dst -> src -> tail chain of evictable, accessible
// segments, the shape TryCompact operates on: tail only needs to exist so
// src.CanEvict() sees a non-nil next segment, mirroring
// TestMergePolicyDrainsSourcesIntoDestination's setup.
func twoSegmentChain(t *testing.T, segmentSize uint32) (*segment.Pool, *fakeIndex, *clock.Coarse, uint32, uint32) {
	t.Helper()
	pool, err := segment.New(segment.Config{SegmentSize: segmentSize, HeapSize: segmentSize * 3})
	require.NoError(t, err)
	idx := newFakeIndex()
	clk := clock.New()
	now := clk.Recent()

	dstID, ok := pool.PopFree(now)
	require.True(t, ok)
	srcID, ok := pool.PopFree(now)
	require.True(t, ok)
	tailID, ok := pool.PopFree(now)
	require.True(t, ok)

	var head uint32 = segment.NoID
	pool.LinkFront(tailID, &head)
	pool.LinkFront(srcID, &head)
	pool.LinkFront(dstID, &head)

	for _, id := range []uint32{dstID, srcID} {
		pool.Header(id).SetAccessible(true)
		pool.Header(id).SetEvictable(true)
	}

	return pool, idx, clk, dstID, srcID
}

func TestMergePolicyTryCompactMergesAdjacentUnderoccupiedSegments(t *testing.T) {
	pool, idx, clk, dstID, srcID := twoSegmentChain(t, 64)

	fillSegment(t, pool, idx, dstID, 1, "d") // 16/64 == 0.25, under threshold.
	fillSegment(t, pool, idx, srcID, 1, "s") // 16/64 == 0.25, under threshold.

	m := &merge{
		pool: pool, index: idx, clock: clk, log: zap.NewNop().Sugar(),
		opts: options.MergeOptions{CompactRatio: 0.5},
	}

	var ct CompactTrigger = m
	ct.TryCompact(dstID)

	require.Equal(t, 1, pool.FreeCount())
	require.Equal(t, uint32(32), uint32(pool.Header(dstID).LiveBytes()))
}

func TestMergePolicyTryCompactSkipsWhenDestinationAboveThreshold(t *testing.T) {
	pool, idx, clk, dstID, srcID := twoSegmentChain(t, 64)

	fillSegment(t, pool, idx, dstID, 3, "d") // 48/64 == 0.75, above threshold.
	fillSegment(t, pool, idx, srcID, 1, "s")

	m := &merge{pool: pool, index: idx, clock: clk, log: zap.NewNop().Sugar(), opts: options.MergeOptions{CompactRatio: 0.5}}
	m.TryCompact(dstID)

	require.Equal(t, 0, pool.FreeCount())
}

func TestMergePolicyTryCompactSkipsWhenSuccessorNotEvictable(t *testing.T) {
	pool, idx, clk, dstID, srcID := twoSegmentChain(t, 64)
	pool.Header(srcID).SetEvictable(false) // successor no longer eligible.

	fillSegment(t, pool, idx, dstID, 1, "d")
	fillSegment(t, pool, idx, srcID, 1, "s")

	m := &merge{pool: pool, index: idx, clock: clk, log: zap.NewNop().Sugar(), opts: options.MergeOptions{CompactRatio: 0.5}}
	m.TryCompact(dstID)

	require.Equal(t, 0, pool.FreeCount())
}

func TestNonePolicyDoesNotImplementCompactTrigger(t *testing.T) {
	p := New(Config{}, options.EvictionOptions{Kind: options.EvictionNone})
	_, ok := p.(CompactTrigger)
	require.False(t, ok)
}
