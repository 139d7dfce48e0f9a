package segment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/segcache/internal/item"
)

// fakeIndex is a minimal in-memory stand-in for a hash index, letting the
// segment package's tests exercise Compact/CopyInto/Prune/Clear without
// depending on the real hashindex package.
type fakeIndex struct {
	live map[string]entry
	freq map[string]uint8
}

type entry struct {
	seg, offset uint32
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{live: make(map[string]entry), freq: make(map[string]uint8)}
}

func (f *fakeIndex) put(key string, seg, offset uint32) {
	f.live[key] = entry{seg, offset}
}

func (f *fakeIndex) IsLive(key []byte, segID uint32, offset uint32) bool {
	e, ok := f.live[string(key)]
	return ok && e.seg == segID && e.offset == offset
}

func (f *fakeIndex) Relink(key []byte, oldSeg uint32, oldOffset uint32, newSeg uint32, newOffset uint32) error {
	e, ok := f.live[string(key)]
	if !ok || e.seg != oldSeg || e.offset != oldOffset {
		return errNoMatch
	}
	f.live[string(key)] = entry{newSeg, newOffset}
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
	return true
}

func (f *fakeIndex) Expire(key []byte, segID uint32, offset uint32) bool {
	return f.Evict(key, segID, offset)
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

const errNoMatch = stubErr("no matching index entry")

func newTestPool(t *testing.T, segmentSize uint32, count int) *Pool {
	t.Helper()
	p, err := New(Config{SegmentSize: segmentSize, HeapSize: uint64(segmentSize) * uint64(count)})
	require.NoError(t, err)
	return p
}

func writeRecord(t *testing.T, s *Segment, idx *fakeIndex, key, value string) uint32 {
	t.Helper()
	size := item.Size(len(key), len(value), 0, false)
	offset, buf := s.AllocItem(size)
	item.Encode(buf, []byte(key), []byte(value), nil, false)
	idx.put(key, s.ID(), offset)
	return offset
}

func TestPoolPopPushFree(t *testing.T) {
	p := newTestPool(t, 1024, 4)
	require.Equal(t, 4, p.FreeCount())

	id, ok := p.PopFree(100)
	require.True(t, ok)
	require.Equal(t, uint32(1), id)
	require.Equal(t, 3, p.FreeCount())

	h := p.Header(id)
	require.Equal(t, uint32(100), h.CreateAt())
	require.True(t, h.Accessible())

	h.SetEvictable(false)
	p.PushFree(id)
	require.Equal(t, 4, p.FreeCount())
	require.False(t, p.Header(id).Accessible())
}

func TestPoolExhaustion(t *testing.T) {
	p := newTestPool(t, 1024, 1)
	_, ok := p.PopFree(0)
	require.True(t, ok)
	_, ok = p.PopFree(0)
	require.False(t, ok)
}

func TestGetMutPairRejectsSameID(t *testing.T) {
	p := newTestPool(t, 1024, 2)
	id, _ := p.PopFree(0)
	_, _, err := p.GetMutPair(id, id)
	require.Error(t, err)
}

func TestAllocAndRemoveItem(t *testing.T) {
	p := newTestPool(t, 1024, 1)
	id, _ := p.PopFree(0)
	seg, err := p.GetMut(id)
	require.NoError(t, err)

	idx := newFakeIndex()
	writeRecord(t, seg, idx, "coffee", "strong")

	require.EqualValues(t, 1, seg.Header().LiveItems())
	require.Greater(t, seg.Header().LiveBytes(), int32(0))

	seg.RemoveItemAt(0)
	require.EqualValues(t, 0, seg.Header().LiveItems())
	require.EqualValues(t, 0, seg.Header().LiveBytes())
}

func TestCompactDropsDeadRecords(t *testing.T) {
	p := newTestPool(t, 4096, 1)
	id, _ := p.PopFree(0)
	seg, err := p.GetMut(id)
	require.NoError(t, err)

	idx := newFakeIndex()
	writeRecord(t, seg, idx, "a", "1")
	writeRecord(t, seg, idx, "b", "2")
	writeRecord(t, seg, idx, "c", "3")

	// "b" becomes dead: remove it from the index without touching the
	// segment, simulating a replace/delete that already happened elsewhere.
	delete(idx.live, "b")
	seg.RemoveItemAt(uint32(item.Size(1, 1, 0, false))) // drop b's counters too

	require.NoError(t, seg.Compact(idx))

	// Both survivors should still be reachable at their (possibly new)
	// offsets through the index.
	for _, key := range []string{"a", "c"} {
		e := idx.live[key]
		require.True(t, idx.IsLive([]byte(key), id, e.offset))
	}
	require.EqualValues(t, 2, seg.Header().LiveItems())
}

func TestCopyIntoMovesRecordsAndClearsSource(t *testing.T) {
	p := newTestPool(t, 4096, 2)
	srcID, _ := p.PopFree(0)
	dstID, _ := p.PopFree(0)

	src, dst, err := p.GetMutPair(srcID, dstID)
	require.NoError(t, err)

	idx := newFakeIndex()
	writeRecord(t, src, idx, "coffee", "strong")
	writeRecord(t, src, idx, "tea", "green")

	require.NoError(t, src.CopyInto(dst, idx))

	require.EqualValues(t, 0, src.Header().LiveItems())
	require.EqualValues(t, 2, dst.Header().LiveItems())

	for _, key := range []string{"coffee", "tea"} {
		e := idx.live[key]
		require.Equal(t, dstID, e.seg)
	}
}

func TestClearUnlinksAllLiveRecords(t *testing.T) {
	p := newTestPool(t, 4096, 1)
	id, _ := p.PopFree(0)
	seg, err := p.GetMut(id)
	require.NoError(t, err)

	idx := newFakeIndex()
	writeRecord(t, seg, idx, "a", "1")
	writeRecord(t, seg, idx, "b", "2")

	seg.Clear(idx, false)

	require.EqualValues(t, 0, seg.Header().LiveItems())
	require.EqualValues(t, 0, seg.Header().LiveBytes())
	require.EqualValues(t, 0, seg.Header().WriteOffset())
	require.False(t, seg.Header().Accessible())
	require.Empty(t, idx.live)
}

func TestPrunePrefersLowFrequencyItems(t *testing.T) {
	p := newTestPool(t, 4096, 1)
	id, _ := p.PopFree(0)
	seg, err := p.GetMut(id)
	require.NoError(t, err)

	idx := newFakeIndex()
	writeRecord(t, seg, idx, "cold", "xxxxxxxxxxxxxxxxxxxx")
	writeRecord(t, seg, idx, "hot", "yyyyyyyyyyyyyyyyyyyy")

	idx.freq["cold"] = 1
	idx.freq["hot"] = 120

	seg.Prune(idx, 1.0, 0.01)

	_, coldStillLive := idx.live["cold"]
	_, hotStillLive := idx.live["hot"]
	require.False(t, coldStillLive)
	require.True(t, hotStillLive)
}
