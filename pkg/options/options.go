// Package options provides data structures and functions for configuring
// the segcache storage engine. It defines the builder surface from spec §6:
// hash table sizing, heap/segment geometry, eviction policy selection, and
// the optional file-backed persistence path.
package options

import (
	"strings"
	"time"

	segcerrors "github.com/iamNilotpal/segcache/pkg/errors"
)

// EvictionPolicyKind selects which eviction policy the engine runs when the
// segment pool is exhausted (spec §4.4).
type EvictionPolicyKind int

const (
	// EvictionNone disables eviction; only expiration and explicit delete
	// free space. Insert under pressure fails with NoFreeSegments.
	EvictionNone EvictionPolicyKind = iota

	// EvictionRandom picks a pseudorandom segment index and advances modulo
	// capacity until an evictable segment is found.
	EvictionRandom

	// EvictionRandomFifo picks a random accessible segment, looks up its TTL
	// bucket, and evicts the head of that bucket.
	EvictionRandomFifo

	// EvictionMerge runs the compaction-plus-pruning merge pass described in
	// spec §4.4.
	EvictionMerge
)

// String renders the policy kind for logging and error messages.
func (k EvictionPolicyKind) String() string {
	switch k {
	case EvictionNone:
		return "none"
	case EvictionRandom:
		return "random"
	case EvictionRandomFifo:
		return "random_fifo"
	case EvictionMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// MergeOptions configures the Merge eviction policy (spec §4.4).
type MergeOptions struct {
	// TargetRatio is the occupancy fraction the destination segment is
	// pruned and compacted down to before absorbing survivors from later
	// segments in the chain.
	TargetRatio float64

	// CompactRatio is the occupancy threshold below which the no-evict
	// merge-compaction trigger fires for two adjacent evictable segments.
	CompactRatio float64

	// MaxMerge bounds how many segments a single merge pass may scan from
	// the rotating start point.
	MaxMerge int

	// NMerge is the number of merge attempts the evictor performs per call
	// before giving up.
	NMerge int

	// StopRatio is the destination occupancy at which the merge pass stops
	// absorbing survivors from subsequent source segments.
	StopRatio float64
}

// EvictionOptions selects and configures the eviction policy (spec §4.4,
// §6).
type EvictionOptions struct {
	Kind  EvictionPolicyKind
	Merge MergeOptions
}

// segmentOptions defines configurable parameters for the segment pool.
// It provides fine-grained control over segment sizing and total heap
// capacity.
type segmentOptions struct {
	// Size is the fixed byte size of every segment. Must exceed the item
	// record header size and be large enough to admit the largest item the
	// workload will ever insert.
	//
	//  - Default: 256KiB
	Size uint32 `json:"segmentSize"`

	// HeapSize is the total number of bytes carved into fixed-size segments.
	// The segment count is HeapSize/Size, bounded by the 24-bit segment id
	// namespace (spec §3).
	//
	//  - Default: 64MiB
	HeapSize uint64 `json:"heapSize"`
}

// hashTableOptions defines configurable parameters for the hash index
// (spec §4.2, §6).
type hashTableOptions struct {
	// HashPower is log2 of the primary bucket slot count. Must be >= 3.
	//
	//  - Default: 16 (64K primary slots, 8K primary buckets)
	HashPower uint8 `json:"hashPower"`

	// OverflowFactor is the fraction of extra chain buckets allocated beyond
	// the primary bucket count, in [0.0, 16.0].
	//
	//  - Default: 0.1
	OverflowFactor float64 `json:"overflowFactor"`
}

// Options defines the configuration parameters for the segcache engine.
// It provides control over hash table sizing, heap geometry, eviction
// policy, and optional persistence.
type Options struct {
	// HashTableOptions configures the hash index.
	HashTableOptions *hashTableOptions `json:"hashTableOptions"`

	// SegmentOptions configures segment sizing and total heap capacity.
	SegmentOptions *segmentOptions `json:"segmentOptions"`

	// EvictionOptions selects and configures the eviction policy.
	EvictionOptions *EvictionOptions `json:"evictionOptions"`

	// DatapoolPath, when non-empty, names a file used to persist the heap
	// image across restarts (spec §6). Empty means no persistence.
	DatapoolPath string `json:"datapoolPath"`

	// ItemMagic enables the per-item 8-byte integrity marker described in
	// spec §3. Disabling it saves 8 bytes per record.
	ItemMagic bool `json:"itemMagic"`

	// ExpireInterval is how often the background maintenance loop calls
	// Expire() to evict TTL-expired segments eagerly (spec §4.3).
	//
	//  - Default: 1s
	ExpireInterval time.Duration `json:"expireInterval"`
}

// OptionFunc is a function type that modifies the engine's configuration.
type OptionFunc func(*Options)

// WithDefaultOptions applies a predefined set of default configuration
// values to the Options struct.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		opts := NewDefaultOptions()
		o.HashTableOptions = opts.HashTableOptions
		o.SegmentOptions = opts.SegmentOptions
		o.EvictionOptions = opts.EvictionOptions
		o.DatapoolPath = opts.DatapoolPath
		o.ItemMagic = opts.ItemMagic
		o.ExpireInterval = opts.ExpireInterval
	}
}

// WithHashPower sets log2 of the primary hash-table slot count.
func WithHashPower(power uint8) OptionFunc {
	return func(o *Options) {
		if power >= MinHashPower {
			o.HashTableOptions.HashPower = power
		}
	}
}

// WithOverflowFactor sets the fraction of extra overflow buckets allocated
// beyond the primary bucket count.
func WithOverflowFactor(factor float64) OptionFunc {
	return func(o *Options) {
		if factor >= 0.0 && factor <= MaxOverflowFactor {
			o.HashTableOptions.OverflowFactor = factor
		}
	}
}

// WithSegmentSize sets the fixed byte size of every segment. Rejected
// outside [MinSegmentSize, MaxSegmentSize] — the upper bound is fixed by
// the hash index's 16-bit, 8-byte-unit offset field (spec §4.2).
func WithSegmentSize(size uint32) OptionFunc {
	return func(o *Options) {
		if size >= MinSegmentSize && size <= MaxSegmentSize {
			o.SegmentOptions.Size = size
		}
	}
}

// WithHeapSize sets the total number of bytes carved into segments.
func WithHeapSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.SegmentOptions.HeapSize = size
		}
	}
}

// WithEvictionPolicy selects the eviction policy and its parameters.
func WithEvictionPolicy(policy EvictionOptions) OptionFunc {
	return func(o *Options) {
		o.EvictionOptions = &policy
	}
}

// WithDatapoolPath sets the file used to persist the heap image across
// restarts.
func WithDatapoolPath(path string) OptionFunc {
	return func(o *Options) {
		path = strings.TrimSpace(path)
		if path != "" {
			o.DatapoolPath = path
		}
	}
}

// WithItemMagic toggles the per-item integrity marker.
func WithItemMagic(enabled bool) OptionFunc {
	return func(o *Options) {
		o.ItemMagic = enabled
	}
}

// WithExpireInterval sets how often the background maintenance loop runs
// eager expiration.
func WithExpireInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval > 0 {
			o.ExpireInterval = interval
		}
	}
}

// SegmentCount returns the number of fixed-size segments the configured
// heap is carved into.
func (o *Options) SegmentCount() int {
	return int(o.SegmentOptions.HeapSize / uint64(o.SegmentOptions.Size))
}

// Validate checks the builder surface's range and presence constraints
// before New wires up a Pool/HashIndex/TtlBuckets/Eviction stack on top of
// it — the individually-ignored bounds checks in each With* setter only
// catch bad values the caller passed through a builder; Validate also
// catches an Options assembled by hand (e.g. a zero-value struct) with
// required pointer fields left nil.
func (o *Options) Validate() error {
	if o.HashTableOptions == nil {
		return segcerrors.NewConfigurationValidationError("hashTableOptions", "must not be nil")
	}
	if o.HashTableOptions.HashPower < MinHashPower {
		return segcerrors.NewFieldRangeError("hashPower", o.HashTableOptions.HashPower, MinHashPower, "255")
	}
	if o.HashTableOptions.OverflowFactor < 0.0 || o.HashTableOptions.OverflowFactor > MaxOverflowFactor {
		return segcerrors.NewFieldRangeError("overflowFactor", o.HashTableOptions.OverflowFactor, 0.0, MaxOverflowFactor)
	}

	if o.SegmentOptions == nil {
		return segcerrors.NewConfigurationValidationError("segmentOptions", "must not be nil")
	}
	// Only the upper bound is enforced unconditionally: it's a hard
	// correctness requirement of the hash index's 16-bit offset field.
	// WithSegmentSize additionally enforces MinSegmentSize for callers going
	// through the builder, but New itself accepts smaller segments too —
	// tests exercise degenerate single-item segments directly.
	if o.SegmentOptions.Size == 0 {
		return segcerrors.NewRequiredFieldError("segmentSize")
	}
	if o.SegmentOptions.Size > MaxSegmentSize {
		return segcerrors.NewFieldRangeError("segmentSize", o.SegmentOptions.Size, 1, MaxSegmentSize)
	}
	if o.SegmentOptions.HeapSize == 0 {
		return segcerrors.NewRequiredFieldError("heapSize")
	}
	if o.SegmentOptions.HeapSize < uint64(o.SegmentOptions.Size) {
		return segcerrors.NewFieldRangeError("heapSize", o.SegmentOptions.HeapSize, o.SegmentOptions.Size, nil)
	}

	if o.EvictionOptions == nil {
		return segcerrors.NewConfigurationValidationError("evictionOptions", "must not be nil")
	}
	if o.ExpireInterval <= 0 {
		return segcerrors.NewFieldRangeError("expireInterval", o.ExpireInterval, "1ns", nil)
	}

	return nil
}
