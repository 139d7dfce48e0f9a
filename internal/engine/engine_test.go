package engine

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/segcache/pkg/errors"
	"github.com/iamNilotpal/segcache/pkg/logger"
	"github.com/iamNilotpal/segcache/pkg/options"
)

func newTestEngine(t *testing.T, segmentSize uint32, segments uint64) *Engine {
	t.Helper()

	opts := options.NewDefaultOptions()
	opts.SegmentOptions.Size = segmentSize
	opts.SegmentOptions.HeapSize = segmentSize * uint64(segments)
	opts.ItemMagic = false

	e, err := New(context.Background(), &Config{Options: &opts, Logger: logger.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func errCode(t *testing.T, err error) errors.ErrorCode {
	t.Helper()
	e, ok := err.(*errors.EngineError)
	require.True(t, ok, "not an EngineError: %T: %v", err, err)
	return e.Code()
}

// Scenario 1: single insert/get.
func TestInsertAndGet(t *testing.T) {
	e := newTestEngine(t, 4096, 64)

	err := e.Insert([]byte("coffee"), []byte("strong"), nil, 0)
	require.NoError(t, err)

	it, ok := e.Get([]byte("coffee"))
	require.True(t, ok)
	require.Equal(t, "strong", string(it.Value()))
	require.Equal(t, 63, e.FreeSegments())
}

// Scenario 2: overwrite — the later insert wins and item count stays at 1.
func TestInsertOverwritesPriorValue(t *testing.T) {
	e := newTestEngine(t, 4096, 64)

	require.NoError(t, e.Insert([]byte("drink"), []byte("coffee"), nil, 0))
	require.NoError(t, e.Insert([]byte("drink"), []byte("espresso"), nil, 0))
	require.NoError(t, e.Insert([]byte("drink"), []byte("whisky"), nil, 0))

	it, ok := e.Get([]byte("drink"))
	require.True(t, ok)
	require.Equal(t, "whisky", string(it.Value()))
	require.Equal(t, 1, e.Items())
	require.Equal(t, 63, e.FreeSegments())
}

// Scenario 3 (collision saturation) is covered at the hash index level
// (internal/hashindex) where the hash function can be stubbed to force a
// collision deterministically; real key hashing can't be relied on to
// collide specific strings into one bucket without running it.

// Scenario 4 (adapted): eager expiration reclaims a zero-TTL segment
// without needing the real clock to advance — ttl=0 means create_at+ttl
// has already passed by the time Expire() runs.
func TestExpireReclaimsZeroTtlKeys(t *testing.T) {
	e := newTestEngine(t, 4096, 64)

	require.NoError(t, e.Insert([]byte("latte"), []byte("v"), nil, 0))
	require.NoError(t, e.Insert([]byte("espresso"), []byte("v"), nil, 5000))

	n := e.Expire()
	require.Equal(t, 1, n)

	_, ok := e.Get([]byte("latte"))
	require.False(t, ok)
	_, ok = e.Get([]byte("espresso"))
	require.True(t, ok)
	require.Equal(t, 63, e.FreeSegments())
}

// Scenario 5: CAS.
func TestCas(t *testing.T) {
	e := newTestEngine(t, 4096, 64)

	err := e.Cas([]byte("coffee"), []byte("hot"), nil, 0, 0)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeNotFound, errCode(t, err))

	require.NoError(t, e.Insert([]byte("coffee"), []byte("hot"), nil, 0))

	err = e.Cas([]byte("coffee"), []byte("iced"), nil, 0, 0)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeExists, errCode(t, err))

	it, ok := e.Get([]byte("coffee"))
	require.True(t, ok)

	require.NoError(t, e.Cas([]byte("coffee"), []byte("iced"), nil, 0, it.Cas()))
	got, ok := e.Get([]byte("coffee"))
	require.True(t, ok)
	require.Equal(t, "iced", string(got.Value()))
}

func TestDeleteRemovesItem(t *testing.T) {
	e := newTestEngine(t, 4096, 64)

	require.NoError(t, e.Insert([]byte("k"), []byte("v"), nil, 0))
	require.True(t, e.Delete([]byte("k")))
	_, ok := e.Get([]byte("k"))
	require.False(t, ok)
	require.Equal(t, 0, e.Items())

	require.False(t, e.Delete([]byte("k")))
}

func TestInsertRejectsEmptyKey(t *testing.T) {
	e := newTestEngine(t, 4096, 64)
	err := e.Insert(nil, []byte("v"), nil, 0)
	require.Error(t, err)
}

func TestInsertRejectsOversizedItem(t *testing.T) {
	e := newTestEngine(t, 64, 4)
	err := e.Insert([]byte("k"), make([]byte, 1000), nil, 0)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeItemOversized, errCode(t, err))
}

func TestWrappingAddAndSaturatingSub(t *testing.T) {
	e := newTestEngine(t, 4096, 64)

	val := make([]byte, 8)
	binary.LittleEndian.PutUint64(val, 0)
	require.NoError(t, e.Insert([]byte("coffee"), val, nil, 0))

	require.NoError(t, e.WrappingAdd([]byte("coffee"), 1))
	it, _ := e.Get([]byte("coffee"))
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(it.Value()))

	require.NoError(t, e.WrappingAdd([]byte("coffee"), ^uint64(0)-1))
	it, _ = e.Get([]byte("coffee"))
	require.Equal(t, ^uint64(0), binary.LittleEndian.Uint64(it.Value()))

	require.NoError(t, e.WrappingAdd([]byte("coffee"), 1))
	it, _ = e.Get([]byte("coffee"))
	require.Equal(t, uint64(0), binary.LittleEndian.Uint64(it.Value()))

	binary.LittleEndian.PutUint64(val, 3)
	require.NoError(t, e.Insert([]byte("beans"), val, nil, 0))

	require.NoError(t, e.SaturatingSub([]byte("beans"), 2))
	it, _ = e.Get([]byte("beans"))
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(it.Value()))

	require.NoError(t, e.SaturatingSub([]byte("beans"), 5))
	it, _ = e.Get([]byte("beans"))
	require.Equal(t, uint64(0), binary.LittleEndian.Uint64(it.Value()))
}

func TestInsertFailsWhenNoFreeSegmentsAndEvictionNone(t *testing.T) {
	opts := options.NewDefaultOptions()
	opts.SegmentOptions.Size = 64
	opts.SegmentOptions.HeapSize = 64
	opts.EvictionOptions = &options.EvictionOptions{Kind: options.EvictionNone}
	opts.ItemMagic = false

	e, err := New(context.Background(), &Config{Options: &opts, Logger: logger.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	// A 56-byte value makes "a" a 64-byte record that fills the only segment.
	require.NoError(t, e.Insert([]byte("a"), make([]byte, 56), nil, 100))

	err = e.Insert([]byte("b"), []byte("1"), nil, 100)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeNoFreeSegments, errCode(t, err))
}

func TestCloseIsIdempotentAndRejectsFurtherWrites(t *testing.T) {
	e := newTestEngine(t, 4096, 4)
	require.NoError(t, e.Close())
	require.ErrorIs(t, e.Close(), ErrEngineClosed)

	err := e.Insert([]byte("a"), []byte("1"), nil, 0)
	require.ErrorIs(t, err, ErrEngineClosed)
}
