package hashindex

import (
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/iamNilotpal/segcache/internal/item"
	"github.com/iamNilotpal/segcache/pkg/clock"
)

// Config configures a new HashIndex.
type Config struct {
	// HashPower is log2 of the primary bucket count.
	HashPower uint8
	// OverflowFactor is the fraction of extra chain buckets allocated
	// beyond the primary bucket count.
	OverflowFactor float64
	// ItemMagic mirrors the engine-wide builder option.
	ItemMagic bool

	Clock  *clock.Coarse
	Reader SegmentReader
	Logger *zap.SugaredLogger
}

// HashIndex maps a 64-bit key fingerprint to at most one (seg_id, offset,
// tag) triple, maintaining per-item frequency and per-bucket CAS and
// timestamp (spec §4.2). It owns its bucket array only — it holds no
// reference to segment bytes beyond what SegmentReader exposes for
// verification.
type HashIndex struct {
	log    *zap.SugaredLogger
	clock  *clock.Coarse
	reader SegmentReader

	itemMagic bool

	power         uint8
	primaryMask   uint64
	primaryCount  uint32
	overflowCount uint32

	buckets     []bucket
	nextToChain uint32 // next free overflow bucket, relative to the overflow region's start

	tagCollisions uint64
	inserts       uint64
	removals      uint64
	lookups       uint64
}

// New builds a HashIndex with primaryCount = 2^HashPower primary buckets
// and overflowCount = floor(primaryCount * OverflowFactor) extra chain
// buckets.
func New(cfg Config) *HashIndex {
	primaryCount := uint32(1) << cfg.HashPower
	overflowCount := uint32(float64(primaryCount) * cfg.OverflowFactor)

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	h := &HashIndex{
		log:           log,
		clock:         cfg.Clock,
		reader:        cfg.Reader,
		itemMagic:     cfg.ItemMagic,
		power:         cfg.HashPower,
		primaryMask:   uint64(primaryCount - 1),
		primaryCount:  primaryCount,
		overflowCount: overflowCount,
		buckets:       make([]bucket, primaryCount+overflowCount),
	}

	log.Infow("hash index initialized",
		"primary_buckets", primaryCount, "overflow_buckets", overflowCount, "hash_power", cfg.HashPower)
	return h
}

func (h *HashIndex) primaryIndex(hash uint64) uint32 {
	return uint32(hash & h.primaryMask)
}

func (h *HashIndex) tagOf(hash uint64) uint16 {
	return uint16((hash >> h.power) & ((1 << tagBits) - 1))
}

// recordKey reads just enough of the record at (segID, offset) to return
// its key bytes, for tag-match verification.
func (h *HashIndex) recordKey(segID uint32, offset uint32) ([]byte, bool) {
	buf, ok := h.reader.RecordAt(segID, offset)
	if !ok {
		return nil, false
	}
	return item.Parse(buf, h.itemMagic).Key(), true
}

// recordItem parses the full record at (segID, offset) into an Item,
// pairing it with cas (the bucket CAS observed during the lookup that
// located it).
func (h *HashIndex) recordItem(segID uint32, offset uint32, cas uint32) (item.Item, bool) {
	buf, ok := h.reader.RecordAt(segID, offset)
	if !ok {
		return item.Item{}, false
	}
	return item.NewItem(item.Parse(buf, h.itemMagic), cas), true
}

// rollTimestamp checks the primary bucket's metadata timestamp against the
// current coarse second; on a new second it clears every item-info word's
// 'seen' hi-bit across the whole chain before proceeding (spec §4.2, §9:
// "Frequency smoothing"), then stamps the new timestamp.
func (h *HashIndex) rollTimestamp(primaryIdx uint32) {
	meta := h.buckets[primaryIdx].slots[0]
	now := uint16(h.clock.Recent())

	if bucketInfoTs(meta) == now {
		return
	}

	for _, ref := range h.chainSlots(primaryIdx) {
		word := h.buckets[ref.bucketIdx].slots[ref.slotIdx]
		if isValidItemInfo(word) {
			h.buckets[ref.bucketIdx].slots[ref.slotIdx] = itemInfoClearSeen(word)
		}
	}

	h.buckets[primaryIdx].slots[0] = bucketInfoSetTs(meta, now)
}

// get is the shared implementation behind Get and GetNoFreqIncr.
func (h *HashIndex) get(key []byte, incrFreq bool) (item.Item, bool) {
	h.lookups++

	hash := hashKey(key)
	primaryIdx := h.primaryIndex(hash)
	tag := h.tagOf(hash)

	if incrFreq {
		h.rollTimestamp(primaryIdx)
	}

	cas := bucketInfoCas(h.buckets[primaryIdx].slots[0])

	for _, ref := range h.chainSlots(primaryIdx) {
		word := h.buckets[ref.bucketIdx].slots[ref.slotIdx]
		if !isValidItemInfo(word) || itemInfoTag(word) != tag {
			continue
		}

		segID := itemInfoSegID(word)
		offset := itemInfoOffsetUnits(word) * 8

		gotKey, ok := h.recordKey(segID, offset)
		if !ok || string(gotKey) != string(key) {
			h.tagCollisions++
			continue
		}

		if incrFreq {
			h.buckets[ref.bucketIdx].slots[ref.slotIdx] = bumpFrequency(word)
		}

		return h.recordItem(segID, offset, cas)
	}

	return item.Item{}, false
}

// bumpFrequency applies the Manku-Motwani-style probabilistic counter:
// always increment below 16, otherwise increment with probability 1/freq,
// saturating at 127, and always set the 'seen' hi-bit (spec §4.2).
func bumpFrequency(word uint64) uint64 {
	freq := itemInfoFreq(word) &^ 0x80
	if freq < 127 {
		if freq < 16 || rand.Uint64()%uint64(freq) == 0 {
			freq++
		}
	}
	return itemInfoSetFreq(word, freq|0x80)
}

// Get finds a tag match, verifies the full key, and updates the item's
// frequency counter (spec §4.2).
func (h *HashIndex) Get(key []byte) (item.Item, bool) {
	return h.get(key, true)
}

// GetNoFreqIncr is Get without the frequency update, used to implement
// add/replace semantics without a hit accounting a second get.
func (h *HashIndex) GetNoFreqIncr(key []byte) (item.Item, bool) {
	return h.get(key, false)
}

// GetFreq returns the frequency recorded for the record known to live at a
// specific (segID, offset), matching only if tag, seg_id, and offset all
// match (used during prune).
func (h *HashIndex) GetFreq(key []byte, segID uint32, offset uint32) (uint8, bool) {
	hash := hashKey(key)
	primaryIdx := h.primaryIndex(hash)
	tag := h.tagOf(hash)
	offsetUnits := offset / 8

	for _, ref := range h.chainSlots(primaryIdx) {
		word := h.buckets[ref.bucketIdx].slots[ref.slotIdx]
		if !isValidItemInfo(word) || itemInfoTag(word) != tag {
			continue
		}
		if itemInfoSegID(word) == segID && itemInfoOffsetUnits(word) == offsetUnits {
			return itemInfoFreq(word) &^ 0x80, true
		}
	}
	return 0, false
}

// Inserted, Removed, Lookups, and TagCollisions expose the observability
// counters spec §4.2 requires ("counters for collisions, inserts,
// removals, and lookups are exposed to observability").
func (h *HashIndex) Inserted() uint64      { return h.inserts }
func (h *HashIndex) Removed() uint64       { return h.removals }
func (h *HashIndex) Lookups() uint64       { return h.lookups }
func (h *HashIndex) TagCollisions() uint64 { return h.tagCollisions }
