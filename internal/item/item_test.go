package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	cases := []struct {
		name         string
		key          string
		value        string
		optional     string
		magicEnabled bool
	}{
		{"with magic", "coffee", "strong", "", true},
		{"without magic", "coffee", "strong", "", false},
		{"with optional flags", "drink", "espresso", "\x01\x02", true},
		{"empty value", "tombstone", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			size := Size(len(tc.key), len(tc.value), len(tc.optional), tc.magicEnabled)
			buf := make([]byte, size)
			Encode(buf, []byte(tc.key), []byte(tc.value), []byte(tc.optional), tc.magicEnabled)

			raw := Parse(buf, tc.magicEnabled)
			assert.Equal(t, tc.key, string(raw.Key()))
			assert.Equal(t, tc.value, string(raw.Value()))
			assert.Equal(t, tc.optional, string(raw.Optional()))
			assert.Equal(t, size, raw.Size())
			assert.True(t, raw.Verify())
		})
	}
}

func TestSizeIsEightByteAligned(t *testing.T) {
	for klen := 0; klen < 20; klen++ {
		for vlen := 0; vlen < 20; vlen++ {
			size := Size(klen, vlen, 0, true)
			require.Zero(t, size%8, "size %d not 8-byte aligned for klen=%d vlen=%d", size, klen, vlen)
			require.GreaterOrEqual(t, size, HeaderSize(true)+klen+vlen)
		}
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	size := Size(3, 3, 0, true)
	buf := make([]byte, size)
	Encode(buf, []byte("abc"), []byte("xyz"), nil, true)

	raw := Parse(buf, true)
	require.True(t, raw.Verify())

	buf[0] ^= 0xFF
	corrupted := Parse(buf, true)
	assert.False(t, corrupted.Verify())
}

func TestItemCasAndMagic(t *testing.T) {
	size := Size(3, 3, 0, true)
	buf := make([]byte, size)
	Encode(buf, []byte("key"), []byte("val"), nil, true)

	raw := Parse(buf, true)
	it := NewItem(raw, 42)
	assert.Equal(t, uint32(42), it.Cas())

	magic, ok := it.Magic()
	require.True(t, ok)
	assert.Equal(t, Magic, magic)
}

func TestItemMagicDisabled(t *testing.T) {
	size := Size(3, 3, 0, false)
	buf := make([]byte, size)
	Encode(buf, []byte("key"), []byte("val"), nil, false)

	raw := Parse(buf, false)
	it := NewItem(raw, 1)

	_, ok := it.Magic()
	assert.False(t, ok)
}
