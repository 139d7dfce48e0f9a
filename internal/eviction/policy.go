// Package eviction implements the segment-reclaiming policies of spec §4.4:
// None, Random, RandomFifo, and Merge. Every policy reclaims whole segments
// — never individual items — back to the free queue.
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

// Policy reclaims one segment's worth of space. Evict returns an error if
// no eligible segment could be found.
type Policy interface {
	Evict() error
}

// CompactTrigger is implemented by policies that support the no-evict
// merge-compaction trigger (spec §4.4): fired on item removal rather than
// on allocation pressure, it opportunistically merges two adjacent,
// under-occupied segments in a TTL chain without pruning. Only the Merge
// policy implements it; the engine reaches it via a type assertion and
// treats policies that don't as a no-op.
type CompactTrigger interface {
	TryCompact(segID uint32)
}

// Config bundles the collaborators every policy (other than None) needs.
type Config struct {
	Pool    *segment.Pool
	Index   segment.Index
	Buckets *ttlbucket.TtlBuckets
	Clock   *clock.Coarse
	Logger  *zap.SugaredLogger
}

// New builds the configured policy, wiring Merge's tunables from opts.
func New(cfg Config, opts options.EvictionOptions) Policy {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch opts.Kind {
	case options.EvictionNone:
		return &none{}
	case options.EvictionRandom:
		return &random{pool: cfg.Pool, buckets: cfg.Buckets, log: log}
	case options.EvictionRandomFifo:
		return &randomFifo{pool: cfg.Pool, buckets: cfg.Buckets, log: log}
	case options.EvictionMerge:
		return &merge{pool: cfg.Pool, index: cfg.Index, buckets: cfg.Buckets, clock: cfg.Clock, opts: opts.Merge, log: log}
	default:
		return &none{}
	}
}

// none never frees anything; only expiration and explicit delete do (spec
// §4.4: "None: evict() always fails").
type none struct{}

func (*none) Evict() error {
	return evicterrors.NewNoFreeSegmentsError("")
}

// random picks a pseudorandom segment index and advances modulo capacity
// until it finds one with CanEvict()==true (spec §4.4).
type random struct {
	pool    *segment.Pool
	buckets *ttlbucket.TtlBuckets
	log     *zap.SugaredLogger
}

func (r *random) Evict() error {
	count := r.pool.SegmentCount()
	if count == 0 {
		return evicterrors.NewNoFreeSegmentsError("")
	}

	start := rand.IntN(count)
	for i := 0; i < count; i++ {
		id := uint32((start+i)%count) + 1
		if r.pool.Header(id).CanEvict() {
			r.buckets.ReclaimSegment(id)
			return nil
		}
	}

	return evicterrors.NewNoFreeSegmentsError("")
}

// randomFifo picks a random accessible segment, looks up its TTL bucket,
// and evicts a segment from that bucket's chain (spec §4.4: "weights by
// segment count per bucket without maintaining weights"). The chain's
// literal head is usually the segment actively being written to
// (evictable==false); walking forward from the head to the first
// CanEvict()-eligible segment honors the evictable invariant while still
// targeting "that bucket" per the spec's description.
type randomFifo struct {
	pool    *segment.Pool
	buckets *ttlbucket.TtlBuckets
	log     *zap.SugaredLogger
}

func (r *randomFifo) Evict() error {
	count := r.pool.SegmentCount()
	if count == 0 {
		return evicterrors.NewNoFreeSegmentsError("")
	}

	start := rand.IntN(count)
	for i := 0; i < count; i++ {
		id := uint32((start+i)%count) + 1
		header := r.pool.Header(id)
		if !header.Accessible() {
			continue
		}

		bucket := r.buckets.BucketForTTL(header.TTL())
		for candidate := bucket.Head(); candidate != segment.NoID; candidate = r.pool.Header(candidate).NextSeg() {
			if r.pool.Header(candidate).CanEvict() {
				r.buckets.ReclaimSegment(candidate)
				return nil
			}
		}
	}

	return evicterrors.NewNoFreeSegmentsError("")
}
