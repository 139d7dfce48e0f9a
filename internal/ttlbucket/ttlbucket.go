package ttlbucket

import (
	"go.uber.org/zap"

	"github.com/iamNilotpal/segcache/internal/segment"
	"github.com/iamNilotpal/segcache/pkg/clock"
	ttlerrors "github.com/iamNilotpal/segcache/pkg/errors"
)

// Bucket is the head-of-chain anchor for every segment created with an
// approximately equal TTL (spec §4.3). It holds no segment bytes itself —
// chain linkage lives in the shared Header.prevSeg/nextSeg fields that
// segment.Pool also uses for the free queue.
type Bucket struct {
	head        uint32
	nextToMerge uint32
	ttl         uint32
}

// Head returns the bucket's current chain head, or segment.NoID if empty.
func (b *Bucket) Head() uint32 { return b.head }

// NextToMerge returns the merge-eviction rotation cursor, or segment.NoID
// once a pass has exhausted the chain and the next attempt should restart
// from the head.
func (b *Bucket) NextToMerge() uint32 { return b.nextToMerge }

// SetNextToMerge advances (or resets to NoID) the merge-eviction cursor.
func (b *Bucket) SetNextToMerge(id uint32) { b.nextToMerge = id }

// TTL returns the representative coarse-second TTL stamped on every segment
// chained into this bucket.
func (b *Bucket) TTL() uint32 { return b.ttl }

// Config configures a new TtlBuckets.
type Config struct {
	Pool   *segment.Pool
	Index  segment.Index
	Clock  *clock.Coarse
	Logger *zap.SugaredLogger
}

// TtlBuckets partitions segments by TTL, routes inserts to the bucket whose
// schedule slot matches an item's requested TTL, and drives eager
// expiration by walking every bucket's chain (spec §4.3).
type TtlBuckets struct {
	log   *zap.SugaredLogger
	pool  *segment.Pool
	index segment.Index
	clock *clock.Coarse

	buckets [BucketCount]Bucket
}

// New builds a TtlBuckets bound to pool for segment allocation/reclaim and
// index for expiring items out of the hash index during a clear.
func New(cfg Config) *TtlBuckets {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	t := &TtlBuckets{log: log, pool: cfg.Pool, index: cfg.Index, clock: cfg.Clock}
	for i := range t.buckets {
		t.buckets[i] = Bucket{head: segment.NoID, nextToMerge: segment.NoID, ttl: BucketTTL(i)}
	}
	return t
}

// Bucket returns the bucket for a given schedule index, for the eviction
// engine's RandomFifo/Merge policies to inspect and mutate chain state.
func (t *TtlBuckets) Bucket(index int) *Bucket { return &t.buckets[index] }

// BucketForTTL is a convenience wrapper combining GetBucketIndex and Bucket.
func (t *TtlBuckets) BucketForTTL(ttl uint32) *Bucket { return &t.buckets[GetBucketIndex(ttl)] }

// Reserve finds or creates room for a size-byte record with the given TTL,
// returning the segment id and a buffer of exactly size bytes to encode the
// record into. If the bucket's current head cannot fit the record (or the
// bucket is empty), Reserve requests a free segment from the pool and links
// it as the new head, freezing the previous head by marking it evictable
// (spec §4.3: "the previous head becomes evictable, its tail is effectively
// frozen"). Returns NewNoFreeSegmentsError if the pool has no free segment
// to offer — the caller (internal/engine) is expected to invoke the
// eviction policy and retry.
func (t *TtlBuckets) Reserve(key string, ttl uint32, size int) (segID uint32, buf []byte, err error) {
	if uint32(size) > t.pool.SegmentSize() {
		return segment.NoID, nil, ttlerrors.NewItemOversizedError(key, size, int(t.pool.SegmentSize()))
	}

	bucket := t.BucketForTTL(ttl)

	if bucket.head != segment.NoID {
		seg, gerr := t.pool.GetMut(bucket.head)
		if gerr != nil {
			return segment.NoID, nil, gerr
		}
		if seg.Header().WriteOffset()+uint32(size) <= t.pool.SegmentSize() {
			_, dst := seg.AllocItem(size)
			return bucket.head, dst, nil
		}
	}

	newID, ok := t.pool.PopFree(t.clock.Recent())
	if !ok {
		return segment.NoID, nil, ttlerrors.NewNoFreeSegmentsError(key)
	}

	if bucket.head != segment.NoID {
		t.pool.Header(bucket.head).SetEvictable(true)
	}
	t.pool.LinkFront(newID, &bucket.head)

	newHeader := t.pool.Header(newID)
	newHeader.SetTTL(bucket.ttl)
	newHeader.SetEvictable(false)

	seg, gerr := t.pool.GetMut(newID)
	if gerr != nil {
		return segment.NoID, nil, gerr
	}

	_, dst := seg.AllocItem(size)
	return newID, dst, nil
}

// reclaim unlinks id from bucket's chain (advancing the bucket's head if id
// was it), clears its items out of the index, and returns it to the free
// queue.
func (t *TtlBuckets) reclaim(bucket *Bucket, id uint32, expire bool) {
	header := t.pool.Header(id)
	if bucket.head == id {
		bucket.head = header.NextSeg()
	}

	seg, err := t.pool.GetMut(id)
	if err != nil {
		t.log.Warnw("reclaim on invalid segment", "segment_id", id, "error", err)
		return
	}
	seg.Clear(t.index, expire)
	t.pool.PushFree(id) // unlinks id from the chain and returns it to the free queue
}

// ReclaimSegment clears and frees id on behalf of an eviction policy,
// looking up id's chain via its stamped TTL and advancing that bucket's
// head if id was it. Callers are expected to have already confirmed id is
// a legal eviction candidate (segment.Header.CanEvict).
func (t *TtlBuckets) ReclaimSegment(id uint32) {
	header := t.pool.Header(id)
	bucket := t.BucketForTTL(header.TTL())
	t.reclaim(bucket, id, false)
}

// Expire walks every bucket's chain from the head forward, clearing any
// segment whose create_at+ttl has passed (spec §4.3). Run as a periodic
// maintenance operation rather than solely on demand. Returns the number
// of items expired (summed across every cleared segment), matching the
// engine's public expire() → items_expired (spec §6).
func (t *TtlBuckets) Expire() int {
	now := t.clock.Recent()
	segmentsCleared := 0
	itemsExpired := 0

	for i := range t.buckets {
		bucket := &t.buckets[i]

		id := bucket.head
		for id != segment.NoID {
			header := t.pool.Header(id)
			next := header.NextSeg()

			if header.CreateAt()+header.TTL() <= now {
				itemsExpired += int(header.LiveItems())
				t.reclaim(bucket, id, true)
				segmentsCleared++
			}

			id = next
		}
	}

	if segmentsCleared > 0 {
		t.log.Debugw("ttl expiration pass reclaimed segments",
			"segments", segmentsCleared, "items", itemsExpired)
	}
	return itemsExpired
}
