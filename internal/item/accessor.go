package item

import "encoding/binary"

// Item is the read-only view returned to callers of a successful Get: a
// Raw record plus the bucket CAS captured at lookup time (spec §4.5). The
// CAS is not stored in the record itself — it lives in the hash bucket's
// metadata slot — so it travels alongside the record rather than inside it.
type Item struct {
	Raw
	cas uint32
}

// NewItem pairs a parsed record with the bucket CAS observed during the
// index lookup that produced it.
func NewItem(raw Raw, cas uint32) Item {
	return Item{Raw: raw, cas: cas}
}

// Cas returns the bucket CAS counter captured at lookup time, used as the
// comparand for a subsequent cas() call.
func (it Item) Cas() uint32 {
	return it.cas
}

// Magic returns the record's magic marker and whether the record carries
// one at all. When the engine is built without ItemMagic, ok is false.
func (it Item) Magic() (value uint64, ok bool) {
	if !it.magicEnabled {
		return 0, false
	}
	return binary.LittleEndian.Uint64(it.buf), true
}
