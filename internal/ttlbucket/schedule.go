// Package ttlbucket partitions segments by TTL, routes inserts to the chain
// whose approximate TTL the item matches, and drives eager expiration across
// all chains (spec §4.3).
package ttlbucket

// BucketCount is the fixed number of TTL buckets (spec §4.3: "a helper maps
// a duration to a bucket index" via "a fixed, strictly increasing
// schedule"). The schedule is laid out as NSteps groups of
// BucketsPerStep buckets each, every step's bucket width eight times its
// predecessor's — fine granularity for short TTLs (1s buckets near the
// start), coarse for long ones (the last step's buckets each span
// roughly 24 days).
const (
	BucketsPerStep = 128
	NSteps         = 8
	BucketCount    = BucketsPerStep * NSteps
)

// MaxTTL is the largest TTL the schedule can represent; longer TTLs are
// clamped into the last bucket. Computed in init from stepWidth, since Go
// constant expressions can't call functions.
var MaxTTL uint32

// stepWidth returns the bucket width, in seconds, of step i: 1, 8, 64, ...
func stepWidth(step int) uint32 {
	width := uint32(1)
	for i := 0; i < step; i++ {
		width *= 8
	}
	return width
}

var stepBase [NSteps]uint32

func init() {
	base := uint32(0)
	for i := 0; i < NSteps; i++ {
		stepBase[i] = base
		base += stepWidth(i) * BucketsPerStep
	}
	MaxTTL = base - 1
}

// GetBucketIndex maps a coarse TTL, in seconds, to a bucket index via the
// fixed schedule. TTLs beyond MaxTTL clamp to the last bucket.
func GetBucketIndex(ttl uint32) int {
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	step := NSteps - 1
	for i := 0; i < NSteps; i++ {
		next := stepBase[i] + stepWidth(i)*BucketsPerStep
		if ttl < next {
			step = i
			break
		}
	}

	offsetWithinStep := (ttl - stepBase[step]) / stepWidth(step)
	return step*BucketsPerStep + int(offsetWithinStep)
}

// BucketTTL returns the representative TTL, in seconds, a bucket index was
// last assigned — the low end of the bucket's range, stamped onto every
// segment chained into it so expire() can test create_at+ttl<=now uniformly.
func BucketTTL(index int) uint32 {
	step := index / BucketsPerStep
	offsetWithinStep := uint32(index % BucketsPerStep)
	return stepBase[step] + offsetWithinStep*stepWidth(step)
}
