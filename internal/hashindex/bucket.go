package hashindex

import "github.com/cespare/xxhash/v2"

// bucketSlots is the number of 64-bit slots per cache-line bucket (spec
// §4.2: "eight 64-bit slots, cache-line aligned").
const bucketSlots = 8

type bucket struct {
	slots [bucketSlots]uint64
}

// fingerprintSeed is prepended to every key before hashing so the
// hash builder is deterministic across runs (spec §4.2: "Hash builder is
// deterministic (fixed seed constants) so the structure can be rebuilt
// from the same keys"), mirroring the fixed-seed ahash RandomState the
// reference hash table construction uses, adapted to a hash function this
// module actually imports.
var fingerprintSeed = [8]byte{0x86, 0x6c, 0xec, 0x91, 0x48, 0x48, 0x8c, 0xbb}

// fingerprint computes the 64-bit hash of a key used both to select a
// primary bucket and to derive its 12-bit tag.
func fingerprint(key []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(fingerprintSeed[:])
	_, _ = d.Write(key)
	return d.Sum64()
}

// hashKey is a package-level indirection over fingerprint so tests can
// force specific bucket/tag collisions deterministically without the
// production hash function ever becoming configurable.
var hashKey = fingerprint

// slotRef addresses one slot within the bucket array, used to locate an
// item-info word discovered while walking a bucket chain.
type slotRef struct {
	bucketIdx uint32
	slotIdx   int
}

// chainSlots returns every item-info slot reachable from the primary
// bucket at primaryIdx, across its full overflow chain. The first slot of
// the primary bucket (metadata) is never included; neither are the pointer
// slots used to link overflow buckets together (spec §4.2: "Chained
// buckets use all eight slots for item-info except that if the chain
// continues the last slot again points onward").
func (h *HashIndex) chainSlots(primaryIdx uint32) []slotRef {
	chainLen := bucketInfoChainLen(h.buckets[primaryIdx].slots[0])

	refs := make([]slotRef, 0, bucketSlots*(int(chainLen)+1))
	bucketIdx := primaryIdx

	for pos := uint8(0); pos <= chainLen; pos++ {
		start := 0
		if pos == 0 {
			start = 1
		}
		end := bucketSlots
		if pos != chainLen {
			end = bucketSlots - 1
		}
		for s := start; s < end; s++ {
			refs = append(refs, slotRef{bucketIdx, s})
		}
		if pos != chainLen {
			bucketIdx = uint32(h.buckets[bucketIdx].slots[bucketSlots-1])
		}
	}

	return refs
}
