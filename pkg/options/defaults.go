package options

import "time"

const (
	// MinHashPower is the smallest allowed hash_power (spec §6): 2^3 = 8
	// primary slots, 1 primary bucket.
	MinHashPower uint8 = 3

	// DefaultHashPower gives 65536 primary slots across 8192 primary
	// buckets, a reasonable starting capacity for a single-node cache.
	DefaultHashPower uint8 = 16

	// MaxOverflowFactor bounds overflow_factor; beyond this the chain-length
	// cap of 16 makes extra overflow buckets unreachable.
	MaxOverflowFactor float64 = 16.0

	// DefaultOverflowFactor reserves 10% extra chain buckets beyond the
	// primary bucket count.
	DefaultOverflowFactor float64 = 0.1

	// MinSegmentSize is the smallest sane segment size: large enough to
	// admit realistic web/feed-cache objects alongside the item header.
	MinSegmentSize uint32 = 4 * 1024

	// MaxSegmentSize is bounded by the item-info word's offset field: 16
	// bits of 8-byte units address at most 2^16*8 bytes (spec §4.2 fixes
	// the bit-packed layout; offsets beyond this are simply unrepresentable
	// without widening the word, which the design notes rule out).
	MaxSegmentSize uint32 = 1 << 19 // 512 KiB

	// DefaultSegmentSize is the default fixed size of every segment (256KiB).
	DefaultSegmentSize uint32 = 256 * 1024

	// DefaultHeapSize is the default total heap capacity (64MiB).
	DefaultHeapSize uint64 = 64 * 1024 * 1024

	// DefaultExpireInterval is how often the background maintenance loop
	// calls Expire() when none is configured.
	DefaultExpireInterval = time.Second
)

// Holds the default configuration settings for a segcache engine instance.
var defaultOptions = Options{
	HashTableOptions: &hashTableOptions{
		HashPower:      DefaultHashPower,
		OverflowFactor: DefaultOverflowFactor,
	},
	SegmentOptions: &segmentOptions{
		Size:     DefaultSegmentSize,
		HeapSize: DefaultHeapSize,
	},
	EvictionOptions: &EvictionOptions{
		Kind: EvictionMerge,
		Merge: MergeOptions{
			TargetRatio:  0.8,
			CompactRatio: 0.2,
			MaxMerge:     8,
			NMerge:       3,
			StopRatio:    0.9,
		},
	},
	ItemMagic:      true,
	ExpireInterval: DefaultExpireInterval,
}

// NewDefaultOptions returns a fresh copy of the default configuration. The
// nested pointer fields are copied so callers can safely mutate the result
// without aliasing the package-level default.
func NewDefaultOptions() Options {
	opts := defaultOptions
	ht := *defaultOptions.HashTableOptions
	seg := *defaultOptions.SegmentOptions
	evict := *defaultOptions.EvictionOptions
	opts.HashTableOptions = &ht
	opts.SegmentOptions = &seg
	opts.EvictionOptions = &evict
	return opts
}
