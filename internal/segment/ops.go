package segment

import (
	"github.com/iamNilotpal/segcache/internal/item"
)

// AllocItem bumps write_offset and live counters, returning the offset the
// caller should encode a record at and a slice of exactly size bytes to
// encode into. The caller guarantees write_offset+size <= segment_size;
// Segments does not check capacity here (the ttlbucket/engine layer above
// checks before calling, per spec §4.1).
func (s *Segment) AllocItem(size int) (offset uint32, buf []byte) {
	offset = s.header.writeOffset
	s.header.incrItem(int32(size))
	return offset, s.data[offset : offset+uint32(size)]
}

// RemoveItemAt decrements live counters for the record at offset. It
// panics if offset is not below write_offset or if a live counter goes
// negative after the decrement; either indicates engine corruption.
func (s *Segment) RemoveItemAt(offset uint32) {
	if offset >= s.header.writeOffset {
		panic("remove_item_at offset beyond segment write offset")
	}
	raw := item.Parse(s.data[offset:], s.itemMagic)
	s.header.decrItem(int32(raw.Size()))
	if s.header.liveItems < 0 || s.header.liveBytes < 0 {
		panic("segment live counters negative after remove_item_at")
	}
}

func (s *Segment) maxItemOffset() uint32 {
	if s.header.writeOffset == 0 {
		return 0
	}
	return s.header.writeOffset - 1
}

// Compact rewrites live records densely at the front of the segment,
// dropping dead ones (records the index no longer points at) and relinking
// survivors to their new offsets. Updates write_offset to the compacted
// tail. Grounded on the original engine's segment compaction pass: a
// single read cursor trailed by a write cursor, relocating in place with
// an overlap-safe copy.
func (s *Segment) Compact(idx Index) error {
	readOffset := uint32(0)
	writeOffset := uint32(0)
	maxOffset := s.maxItemOffset()

	for s.header.liveItems > 0 && readOffset <= maxOffset {
		raw := item.Parse(s.data[readOffset:], s.itemMagic)
		size := uint32(raw.Size())
		key := raw.Key()

		if !idx.IsLive(key, s.header.id, readOffset) {
			readOffset += size
			continue
		}

		if readOffset != writeOffset {
			if err := idx.Relink(key, s.header.id, readOffset, s.header.id, writeOffset); err != nil {
				// Relink refused (slot no longer matches); the record is
				// effectively dead from the index's point of view. Skip it
				// rather than corrupt the compacted layout.
				readOffset += size
				writeOffset = readOffset
				continue
			}
			copy(s.data[writeOffset:writeOffset+size], s.data[readOffset:readOffset+size])
		}

		readOffset += size
		writeOffset += size
	}

	s.header.writeOffset = writeOffset
	return nil
}

// CopyInto copies as many live records from s as fit into dst's tail, each
// copy non-overlapping and accompanied by an index relink, stopping
// cleanly at the first record that will not fit. The caller (typically a
// merge pass) then clears s to reclaim whatever was left behind.
func (s *Segment) CopyInto(dst *Segment, idx Index) error {
	readOffset := uint32(0)
	maxOffset := s.maxItemOffset()

	for s.header.liveItems > 0 && readOffset <= maxOffset {
		raw := item.Parse(s.data[readOffset:], s.itemMagic)
		size := uint32(raw.Size())
		key := raw.Key()

		writeOffset := dst.header.writeOffset
		live := idx.IsLive(key, s.header.id, readOffset)

		if !live || writeOffset+size > uint32(len(dst.data)) {
			if !live {
				readOffset += size
				continue
			}
			// Doesn't fit in dst; stop, leaving remaining records in s.
			break
		}

		if err := idx.Relink(key, s.header.id, readOffset, dst.header.id, writeOffset); err != nil {
			return err
		}

		copy(dst.data[writeOffset:writeOffset+size], s.data[readOffset:readOffset+size])
		dst.header.incrItem(int32(size))
		s.RemoveItemAt(readOffset)

		readOffset += size
	}

	return nil
}

// Prune evicts records whose weighted frequency falls at or below a
// dynamically adjusted cutoff, until the segment's occupancy reaches
// target_ratio. Weighted frequency normalizes an item's raw frequency by
// its size relative to the segment's mean record size, so large cold
// records are shed before small ones at the same frequency. Returns the
// final cutoff for the caller to feed into the next segment's prune call
// within the same merge pass (spec §4.1).
func (s *Segment) Prune(idx Index, cutoffFreq float64, targetRatio float64) float64 {
	if s.header.liveItems == 0 {
		return cutoffFreq
	}

	toKeep := int32(float64(len(s.data)) * targetRatio)
	toDrop := s.header.liveBytes - toKeep

	meanSize := float64(s.header.liveBytes) / float64(s.header.liveItems)
	cutoff := (1.0 + cutoffFreq) / 2.0
	updateInterval := uint32(len(s.data)) / 10
	if updateInterval == 0 {
		updateInterval = 1
	}

	var scanned, retained, dropped int32
	nextUpdate := updateInterval

	offset := uint32(0)
	maxOffset := s.maxItemOffset()

	for s.header.liveItems > 0 && offset <= maxOffset {
		raw := item.Parse(s.data[offset:], s.itemMagic)
		size := int32(raw.Size())
		key := raw.Key()

		if !idx.IsLive(key, s.header.id, offset) {
			offset += uint32(size)
			continue
		}

		scanned += size
		if uint32(scanned) >= nextUpdate {
			nextUpdate += updateInterval
			t := (float64(retained)/float64(scanned) - targetRatio) / targetRatio
			if t < -0.5 || t > 0.5 {
				cutoff *= 1.0 + t
			}
		}

		freq, ok := idx.Freq(key, s.header.id, offset)
		itemFreq := float64(0)
		if ok {
			itemFreq = float64(freq)
		}
		weighted := itemFreq / (float64(size) / meanSize)

		if cutoff >= 0.0001 && toDrop > 0 && dropped < toDrop && weighted <= cutoff {
			idx.Evict(key, s.header.id, offset)
			s.RemoveItemAt(offset)
			dropped += size
			offset += uint32(size)
			continue
		}

		retained += size
		offset += uint32(size)
	}

	return cutoff
}

// Clear walks every record in the segment and unlinks it from the index —
// as expiration or eviction depending on expire — then resets write_offset
// to zero. Asserts live_items==0 afterward; a nonzero count indicates the
// index and segment disagreed about what was live, which is a fatal
// consistency violation (spec §7).
func (s *Segment) Clear(idx Index, expire bool) {
	s.header.accessible = false
	s.header.evictable = false

	offset := uint32(0)
	maxOffset := s.maxItemOffset()

	for s.header.liveItems > 0 && offset <= maxOffset {
		raw := item.Parse(s.data[offset:], s.itemMagic)
		size := uint32(raw.Size())
		key := raw.Key()

		if idx.IsLive(key, s.header.id, offset) {
			if expire {
				idx.Expire(key, s.header.id, offset)
			} else {
				idx.Evict(key, s.header.id, offset)
			}
			s.RemoveItemAt(offset)
		}

		offset += size
	}

	if s.header.liveItems != 0 {
		panic("segment not empty after clear")
	}
	if s.header.liveBytes != 0 {
		panic("segment has nonzero live bytes after clear")
	}

	s.header.writeOffset = 0
}
