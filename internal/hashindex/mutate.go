package hashindex

import (
	hxerrors "github.com/iamNilotpal/segcache/pkg/errors"
)

// Insert hashes the key, scans for an existing entry (replacing it in
// place and immediately freeing the old record's byte accounting), or
// else writes the new item-info into the first empty slot of the chain.
// If no slot is free it attempts to chain a fresh overflow bucket; it
// fails with a chain-exhausted error if the chain is already at
// MaxChainLength and the overflow area has no spare buckets. Increments
// the bucket CAS on any successful insert or replace (spec §4.2).
func (h *HashIndex) Insert(key []byte, segID uint32, offset uint32) error {
	_, _, err := h.InsertLocated(key, segID, offset)
	return err
}

// InsertLocated is Insert's full-detail form: besides the insert error, it
// reports the segment a prior record for the same key was displaced from,
// if any. The engine uses the displaced segment id to drive the no-evict
// merge-compaction trigger (spec §4.4) that a bare Insert has no way to
// surface.
func (h *HashIndex) InsertLocated(key []byte, segID uint32, offset uint32) (replacedSeg uint32, replaced bool, err error) {
	hash := hashKey(key)
	primaryIdx := h.primaryIndex(hash)
	tag := h.tagOf(hash)
	newWord := packItemInfo(tag, 0, segID, offset/8)

	var replacedOffset uint32
	var emptyRef *slotRef

	for _, ref := range h.chainSlots(primaryIdx) {
		word := h.buckets[ref.bucketIdx].slots[ref.slotIdx]

		if !isValidItemInfo(word) {
			if emptyRef == nil {
				r := ref
				emptyRef = &r
			}
			continue
		}

		if itemInfoTag(word) != tag {
			continue
		}

		existingKey, ok := h.recordKey(itemInfoSegID(word), itemInfoOffsetUnits(word)*8)
		if !ok || string(existingKey) != string(key) {
			h.tagCollisions++
			continue
		}

		replacedSeg = itemInfoSegID(word)
		replacedOffset = itemInfoOffsetUnits(word) * 8
		replaced = true
		h.buckets[ref.bucketIdx].slots[ref.slotIdx] = newWord
		break
	}

	if !replaced {
		if emptyRef != nil {
			h.buckets[emptyRef.bucketIdx].slots[emptyRef.slotIdx] = newWord
		} else if chainErr := h.chainNewBucket(primaryIdx, newWord); chainErr != nil {
			return 0, false, hxerrors.NewChainExhaustedError(string(key), int(bucketInfoChainLen(h.buckets[primaryIdx].slots[0])))
		}
	}

	h.buckets[primaryIdx].slots[0] = bucketInfoIncrCas(h.buckets[primaryIdx].slots[0])
	h.inserts++

	if replaced {
		h.reader.RemoveItemAt(replacedSeg, replacedOffset)
	}
	return replacedSeg, replaced, nil
}

// chainNewBucket links a fresh overflow bucket onto the end of
// primaryIdx's chain and stores word in its first slot. Fails if the chain
// is already at MaxChainLength or the overflow area is exhausted.
func (h *HashIndex) chainNewBucket(primaryIdx uint32, word uint64) error {
	meta := h.buckets[primaryIdx].slots[0]
	chainLen := bucketInfoChainLen(meta)

	if chainLen >= MaxChainLength || h.nextToChain >= h.overflowCount {
		return hxerrors.NewChainExhaustedError("", int(chainLen))
	}

	// Walk to the current tail bucket so its pointer slot can be rewritten.
	tailIdx := primaryIdx
	for i := uint8(0); i < chainLen; i++ {
		tailIdx = uint32(h.buckets[tailIdx].slots[bucketSlots-1])
	}

	newBucketIdx := h.primaryCount + h.nextToChain
	h.nextToChain++

	// The chain was full, so the old tail's last slot holds an item-info
	// word. That word moves into the new bucket's first slot, the inserted
	// word goes into its second slot, and the old tail's last slot becomes
	// the pointer to the new tail.
	h.buckets[newBucketIdx].slots[0] = h.buckets[tailIdx].slots[bucketSlots-1]
	h.buckets[newBucketIdx].slots[1] = word
	h.buckets[tailIdx].slots[bucketSlots-1] = uint64(newBucketIdx)

	h.buckets[primaryIdx].slots[0] = bucketInfoSetChainLen(h.buckets[primaryIdx].slots[0], chainLen+1)
	return nil
}

// Delete unlinks the index entry for key and asks the segment reader to
// remove the item at its recorded offset. Returns whether anything was
// removed. Bucket CAS is not incremented (spec §9 open question (a),
// preserved as-is).
func (h *HashIndex) Delete(key []byte) bool {
	_, removed := h.DeleteLocated(key)
	return removed
}

// DeleteLocated is Delete's full-detail form, additionally reporting the
// segment the removed record lived in. The engine uses this to drive the
// no-evict merge-compaction trigger (spec §4.4) fired on removal.
func (h *HashIndex) DeleteLocated(key []byte) (segID uint32, removed bool) {
	hash := hashKey(key)
	primaryIdx := h.primaryIndex(hash)
	tag := h.tagOf(hash)

	for _, ref := range h.chainSlots(primaryIdx) {
		word := h.buckets[ref.bucketIdx].slots[ref.slotIdx]
		if !isValidItemInfo(word) || itemInfoTag(word) != tag {
			continue
		}

		candidateSeg := itemInfoSegID(word)
		offset := itemInfoOffsetUnits(word) * 8

		gotKey, ok := h.recordKey(candidateSeg, offset)
		if !ok || string(gotKey) != string(key) {
			h.tagCollisions++
			continue
		}

		h.buckets[ref.bucketIdx].slots[ref.slotIdx] = 0
		h.removals++
		h.reader.RemoveItemAt(candidateSeg, offset)
		return candidateSeg, true
	}

	return 0, false
}

// TryUpdateCas scans for the tag+key match; if the bucket's current CAS
// equals cas, it advances the CAS and returns nil. Otherwise it returns an
// Exists-flavored error (via ErrorCodeIndexCasMismatch) so the caller
// re-inserts the new value; a missing key returns a not-found error.
func (h *HashIndex) TryUpdateCas(key []byte, cas uint32) error {
	hash := hashKey(key)
	primaryIdx := h.primaryIndex(hash)
	tag := h.tagOf(hash)

	for _, ref := range h.chainSlots(primaryIdx) {
		word := h.buckets[ref.bucketIdx].slots[ref.slotIdx]
		if !isValidItemInfo(word) || itemInfoTag(word) != tag {
			continue
		}

		gotKey, ok := h.recordKey(itemInfoSegID(word), itemInfoOffsetUnits(word)*8)
		if !ok || string(gotKey) != string(key) {
			h.tagCollisions++
			continue
		}

		h.buckets[ref.bucketIdx].slots[ref.slotIdx] = bumpFrequency(word)

		currentCas := bucketInfoCas(h.buckets[primaryIdx].slots[0])
		if cas != currentCas {
			return hxerrors.NewCasMismatchError(string(key), cas)
		}
		h.buckets[primaryIdx].slots[0] = bucketInfoIncrCas(h.buckets[primaryIdx].slots[0])
		return nil
	}

	return hxerrors.NewKeyNotFoundError(string(key), "TryUpdateCas")
}

// RelinkItem atomically rewrites the single matching item-info slot for
// key from (oldSeg, oldOffset) to (newSeg, newOffset). Requires the old
// slot to still hold the expected tag+seg+offset; used during compact and
// merge. Satisfies segment.Index's Relink method.
func (h *HashIndex) RelinkItem(key []byte, oldSeg uint32, oldOffset uint32, newSeg uint32, newOffset uint32) error {
	hash := hashKey(key)
	primaryIdx := h.primaryIndex(hash)
	tag := h.tagOf(hash)
	oldOffsetUnits := oldOffset / 8

	for _, ref := range h.chainSlots(primaryIdx) {
		word := h.buckets[ref.bucketIdx].slots[ref.slotIdx]
		if !isValidItemInfo(word) || itemInfoTag(word) != tag {
			continue
		}
		if itemInfoSegID(word) != oldSeg || itemInfoOffsetUnits(word) != oldOffsetUnits {
			h.tagCollisions++
			continue
		}

		h.buckets[ref.bucketIdx].slots[ref.slotIdx] = packItemInfo(tag, itemInfoFreq(word)&^0x80, newSeg, newOffset/8)
		return nil
	}

	return hxerrors.NewIndexCorruptionError("RelinkItem", nil).WithKey(string(key))
}

// removeFrom is the shared implementation behind the segment.Index-facing
// Evict and Expire methods: a location-qualified removal that does not
// require the bucket CAS to change (spec §4.2, §9 open question (b):
// index removal is the sole source of truth for liveness).
func (h *HashIndex) removeFrom(key []byte, segID uint32, offset uint32) bool {
	hash := hashKey(key)
	primaryIdx := h.primaryIndex(hash)
	tag := h.tagOf(hash)
	offsetUnits := offset / 8

	for _, ref := range h.chainSlots(primaryIdx) {
		word := h.buckets[ref.bucketIdx].slots[ref.slotIdx]
		if !isValidItemInfo(word) || itemInfoTag(word) != tag {
			continue
		}
		if itemInfoSegID(word) != segID || itemInfoOffsetUnits(word) != offsetUnits {
			h.tagCollisions++
			continue
		}

		h.buckets[ref.bucketIdx].slots[ref.slotIdx] = 0
		h.removals++
		return true
	}

	return false
}

// IsLive reports whether the record at (segID, offset) for key is still
// the index's current entry. Satisfies segment.Index.
func (h *HashIndex) IsLive(key []byte, segID uint32, offset uint32) bool {
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
			return true
		}
	}
	return false
}

// Relink satisfies segment.Index by delegating to RelinkItem.
func (h *HashIndex) Relink(key []byte, oldSeg uint32, oldOffset uint32, newSeg uint32, newOffset uint32) error {
	return h.RelinkItem(key, oldSeg, oldOffset, newSeg, newOffset)
}

// Freq satisfies segment.Index by delegating to GetFreq.
func (h *HashIndex) Freq(key []byte, segID uint32, offset uint32) (uint8, bool) {
	return h.GetFreq(key, segID, offset)
}

// Evict removes the index entry for key at (segID, offset) as part of
// eviction. Satisfies segment.Index.
func (h *HashIndex) Evict(key []byte, segID uint32, offset uint32) bool {
	return h.removeFrom(key, segID, offset)
}

// Expire removes the index entry for key at (segID, offset) as part of
// TTL expiration. Satisfies segment.Index.
func (h *HashIndex) Expire(key []byte, segID uint32, offset uint32) bool {
	return h.removeFrom(key, segID, offset)
}
