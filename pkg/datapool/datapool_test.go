package datapool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryPool(t *testing.T) {
	p := NewMemory(2 * PageSize)
	require.Equal(t, 2*PageSize, p.Len())
	require.NoError(t, p.Flush())

	p.AsMutSlice()[0] = 0xDE
	require.Equal(t, byte(0xDE), p.AsSlice()[0])
}

func TestFileCreateFlushOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heap.data")

	size := 2 * PageSize

	f, err := Create(path, size, 7)
	require.NoError(t, err)
	require.Equal(t, size, f.Len())

	copy(f.AsMutSlice(), []byte{0xDE, 0xCA, 0xFB, 0xAD})
	require.NoError(t, f.Flush())

	reopened, err := Open(path, size, 7)
	require.NoError(t, err)
	require.Equal(t, size, reopened.Len())
	require.Equal(t, []byte{0xDE, 0xCA, 0xFB, 0xAD}, reopened.AsSlice()[0:4])
	require.Equal(t, byte(0), reopened.AsSlice()[4])

	copy(reopened.AsMutSlice(), []byte{0xBA, 0xDC, 0x0F, 0xFE})
	require.NoError(t, reopened.Flush())

	final, err := Open(path, size, 7)
	require.NoError(t, err)
	require.Equal(t, []byte{0xBA, 0xDC, 0x0F, 0xFE}, final.AsSlice()[0:4])
}

func TestOpenRejectsWrongUserVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heap.data")

	_, err := Create(path, PageSize, 0)
	require.NoError(t, err)

	_, err = Open(path, PageSize, 1)
	require.Error(t, err)
}

func TestOpenRejectsCorruptedData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heap.data")

	f, err := Create(path, PageSize, 0)
	require.NoError(t, err)
	require.NoError(t, f.Flush())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[HeaderSize] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = Open(path, PageSize, 0)
	require.Error(t, err)
}

func TestCreateFailsWhenFileAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heap.data")

	_, err := Create(path, PageSize, 0)
	require.NoError(t, err)

	_, err = Create(path, PageSize, 0)
	require.Error(t, err)
}
