package eviction

import (
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/iamNilotpal/segcache/internal/segment"
	"github.com/iamNilotpal/segcache/internal/ttlbucket"
	"github.com/iamNilotpal/segcache/pkg/clock"
	evicterrors "github.com/iamNilotpal/segcache/pkg/errors"
	"github.com/iamNilotpal/segcache/pkg/options"
)

// merge implements spec §4.4's Merge policy: prune-and-compact a
// destination segment, then absorb survivors from subsequent segments in
// its TTL chain, freeing each source as it's drained. Grounded on the
// original engine's merge_evict pass over a TTL-bucket chain.
type merge struct {
	pool    *segment.Pool
	index   segment.Index
	buckets *ttlbucket.TtlBuckets
	clock   *clock.Coarse
	opts    options.MergeOptions
	log     *zap.SugaredLogger
}

// Evict picks a random segment to derive a starting TTL bucket, then walks
// every bucket (wrapping around) looking for one whose chain yields a
// successful merge pass.
func (m *merge) Evict() error {
	count := m.pool.SegmentCount()
	if count == 0 {
		return evicterrors.NewNoFreeSegmentsError("")
	}

	seedID := uint32(rand.IntN(count)) + 1
	startBucket := ttlbucket.GetBucketIndex(m.pool.Header(seedID).TTL())

	for i := 0; i <= ttlbucket.BucketCount; i++ {
		bucketIdx := (startBucket + i) % ttlbucket.BucketCount
		bucket := m.buckets.Bucket(bucketIdx)

		head := bucket.Head()
		if head == segment.NoID {
			continue
		}

		start := bucket.NextToMerge()
		if start == segment.NoID {
			start = head
		}

		next, err := m.mergeChain(start)
		if err != nil {
			bucket.SetNextToMerge(segment.NoID)
			continue
		}

		bucket.SetNextToMerge(next)
		return nil
	}

	return evicterrors.NewNoFreeSegmentsError("")
}

// chainLen counts consecutive CanEvict segments starting at start, walking
// next_seg, bounded by MaxMerge.
func (m *merge) chainLen(start uint32) int {
	length := 0
	id := start
	for length < m.opts.MaxMerge && id != segment.NoID {
		if !m.pool.Header(id).CanEvict() {
			break
		}
		length++
		id = m.pool.Header(id).NextSeg()
	}
	return length
}

// mergeChain prunes and compacts the destination (start), then walks
// forward absorbing survivors from each subsequent source segment until
// the chain is exhausted, MaxMerge is reached, the destination reaches
// StopRatio occupancy, or a source is no longer evictable. Returns the
// segment to resume from on the chain's next rotation, or an error if the
// chain was too short to attempt a merge at all.
func (m *merge) mergeChain(start uint32) (uint32, error) {
	chainLen := m.chainLen(start)
	if chainLen < 3 {
		return segment.NoID, evicterrors.NewNoFreeSegmentsError("")
	}

	targetRatio := m.opts.TargetRatio
	if chainLen < m.opts.NMerge {
		targetRatio = 1.0 / float64(chainLen)
	}

	dst, err := m.pool.GetMut(start)
	if err != nil {
		return segment.NoID, err
	}

	cutoff := dst.Prune(m.index, 1.0, targetRatio)
	if err := dst.Compact(m.index); err != nil {
		return segment.NoID, err
	}
	dst.Header().MarkMerged(m.clock.Recent())

	stopBytes := int32(m.opts.StopRatio * float64(m.pool.SegmentSize()))
	nextID := dst.Header().NextSeg()
	merged := 1

	for nextID != segment.NoID {
		if merged > m.opts.MaxMerge {
			break
		}

		srcHeader := m.pool.Header(nextID)
		if !srcHeader.CanEvict() {
			// The chain ran into a segment that's no longer eligible (e.g.
			// it became the new active head). Segments already merged stay
			// freed; the cursor just resets so the next pass restarts from
			// this bucket's head rather than resuming mid-chain.
			return segment.NoID, nil
		}

		dstView, src, err := m.pool.GetMutPair(start, nextID)
		if err != nil {
			return segment.NoID, err
		}
		if dstView.Header().LiveBytes() >= stopBytes {
			break
		}

		cutoff = src.Prune(m.index, cutoff, targetRatio)
		if err := src.CopyInto(dstView, m.index); err != nil {
			return segment.NoID, err
		}

		after := src.Header().NextSeg()
		src.Clear(m.index, false)
		m.pool.PushFree(nextID)

		merged++
		nextID = after
	}

	return nextID, nil
}

// occupancy returns a segment's live-byte fraction of the fixed segment
// size, the quantity compact_ratio is compared against (spec §4.4).
func (m *merge) occupancy(h *segment.Header) float64 {
	return float64(h.LiveBytes()) / float64(m.pool.SegmentSize())
}

// TryCompact implements spec §4.4's "no-evict merge compaction" trigger:
// called after an item is removed from segID, it checks whether segID's
// occupancy has fallen to CompactRatio or below and whether its chain
// successor is also at or below CompactRatio and evictable; if so it runs
// mergeCompact on the pair. A miss on either condition is silent — this is
// an opportunistic pass, not a required one.
func (m *merge) TryCompact(segID uint32) {
	header := m.pool.Header(segID)
	if header == nil || !header.Accessible() {
		return
	}
	if m.occupancy(header) > m.opts.CompactRatio {
		return
	}

	nextID := header.NextSeg()
	if nextID == segment.NoID {
		return
	}

	nextHeader := m.pool.Header(nextID)
	if nextHeader == nil || !nextHeader.CanEvict() {
		return
	}
	if m.occupancy(nextHeader) > m.opts.CompactRatio {
		return
	}

	if err := m.mergeCompact(segID, nextID); err != nil {
		m.log.Warnw("no-evict merge compact failed",
			"segment_id", segID, "next_segment_id", nextID, "error", err)
	}
}

// mergeCompact is the no-evict merge variant (spec §4.4): compacts dst
// densely in place, then copies src's survivors into dst without pruning
// either side, stopping as soon as dst would overflow — CopyInto already
// implements that stopping rule. A fully-drained src is cleared and
// returned to the free queue; a partially-drained one is left for a later
// pass to pick up.
func (m *merge) mergeCompact(dstID, srcID uint32) error {
	dst, src, err := m.pool.GetMutPair(dstID, srcID)
	if err != nil {
		return err
	}

	if err := dst.Compact(m.index); err != nil {
		return err
	}
	if err := src.CopyInto(dst, m.index); err != nil {
		return err
	}

	if src.Header().LiveItems() == 0 {
		src.Clear(m.index, false)
		m.pool.PushFree(srcID)
	}
	return nil
}
