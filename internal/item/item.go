// Package item defines the on-heap record format: a contiguous, 8-byte
// aligned byte layout written directly into segment data, plus a read-only
// accessor view over it. Records are never resized in place — an update
// writes a brand new record and the old index entry is unlinked.
package item

import (
	"encoding/binary"
)

// Magic is the fixed constant stamped at the front of every record when the
// optional integrity marker is enabled (builder option ItemMagic). It has
// no relation to any on-disk or segment-level magic; it exists purely to
// let a reader assert "this offset really is the start of a record" during
// debugging and corruption detection.
const Magic uint64 = 0xC0FFEE1000C0FFEE

// MagicSize is the width in bytes of the optional magic field.
const MagicSize = 8

// Fixed-width header fields that always precede key/value/optional bytes,
// independent of whether the magic marker is enabled. klen is fixed at two
// bytes (spec allows 1-2; two bytes removes a branch on the hot path and
// still wastes nothing once 8-byte alignment is accounted for). vlen is
// four bytes, wide enough for any value this engine will ever host within
// a single segment.
const (
	klenSize = 2
	vlenSize = 4
	olenSize = 1

	fixedHeaderSize = klenSize + vlenSize + olenSize
)

// Align rounds n up to the next multiple of 8, matching the 8-byte record
// alignment spec §3 requires so item-info offsets (stored in 8-byte units)
// can address any record boundary.
func Align(n int) int {
	return (n + 7) &^ 7
}

// HeaderSize returns the fixed header width for a record, accounting for
// whether the magic marker is enabled.
func HeaderSize(magicEnabled bool) int {
	if magicEnabled {
		return MagicSize + fixedHeaderSize
	}
	return fixedHeaderSize
}

// Size computes the total 8-byte aligned size of a record with the given
// key/value/optional lengths.
func Size(klen int, vlen int, olen int, magicEnabled bool) int {
	return Align(HeaderSize(magicEnabled) + klen + vlen + olen)
}

// Encode writes a complete record into dst, which must be at least
// Size(len(key), len(value), len(optional), magicEnabled) bytes long.
// Bytes beyond the payload up to the aligned boundary are left zeroed by
// the caller (the segment pool zeroes a segment's data when it hands the
// segment out from the free queue).
func Encode(dst []byte, key []byte, value []byte, optional []byte, magicEnabled bool) {
	off := 0
	if magicEnabled {
		binary.LittleEndian.PutUint64(dst[off:], Magic)
		off += MagicSize
	}

	binary.LittleEndian.PutUint16(dst[off:], uint16(len(key)))
	off += klenSize

	binary.LittleEndian.PutUint32(dst[off:], uint32(len(value)))
	off += vlenSize

	dst[off] = uint8(len(optional))
	off += olenSize

	off += copy(dst[off:], key)
	off += copy(dst[off:], value)
	copy(dst[off:], optional)
}

// Raw is a read-only, zero-copy view over an encoded record living inside
// segment data. It does not validate the magic marker itself; callers that
// care about corruption detection call Verify.
type Raw struct {
	buf          []byte
	magicEnabled bool
	klen         uint16
	vlen         uint32
	olen         uint8
	keyOff       int
	valOff       int
	optOff       int
}

// Parse builds a Raw view over buf, which must start at the record's first
// byte and extend at least through the record's logical end (it may extend
// further — e.g. to the segment's write offset — callers slice with Size
// when an exact bound is needed).
func Parse(buf []byte, magicEnabled bool) Raw {
	off := 0
	if magicEnabled {
		off += MagicSize
	}

	klen := binary.LittleEndian.Uint16(buf[off:])
	off += klenSize

	vlen := binary.LittleEndian.Uint32(buf[off:])
	off += vlenSize

	olen := buf[off]
	off += olenSize

	keyOff := off
	valOff := keyOff + int(klen)
	optOff := valOff + int(vlen)

	return Raw{
		buf:          buf,
		magicEnabled: magicEnabled,
		klen:         klen,
		vlen:         vlen,
		olen:         olen,
		keyOff:       keyOff,
		valOff:       valOff,
		optOff:       optOff,
	}
}

// Verify reports whether the magic marker at the front of the record
// matches the expected constant. Always true when magic is disabled.
func (r Raw) Verify() bool {
	if !r.magicEnabled {
		return true
	}
	return binary.LittleEndian.Uint64(r.buf) == Magic
}

// Key returns the record's key bytes.
func (r Raw) Key() []byte {
	return r.buf[r.keyOff:r.valOff]
}

// Value returns the record's value bytes.
func (r Raw) Value() []byte {
	return r.buf[r.valOff:r.optOff]
}

// Optional returns the record's optional/flags bytes.
func (r Raw) Optional() []byte {
	return r.buf[r.optOff : r.optOff+int(r.olen)]
}

// Size returns the total 8-byte aligned size of the record, matching what
// Size(klen, vlen, olen, magicEnabled) would have returned at encode time.
func (r Raw) Size() int {
	return Size(int(r.klen), int(r.vlen), int(r.olen), r.magicEnabled)
}

// KeyLen, ValueLen, and OptionalLen expose the raw field widths without
// slicing, useful for sizing buffers before a copy.
func (r Raw) KeyLen() int      { return int(r.klen) }
func (r Raw) ValueLen() int    { return int(r.vlen) }
func (r Raw) OptionalLen() int { return int(r.olen) }
