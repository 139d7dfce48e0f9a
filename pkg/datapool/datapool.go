// Package datapool implements the persisted heap image the segment pool's
// backing bytes can be loaded from and saved to: a fixed 4 KiB header
// (checksum, magic, version, timestamps) immediately followed by the raw
// heap bytes. A Memory pool never touches disk; a File pool persists
// straight through os.ReadFile/os.WriteFile and verifies a BLAKE3
// checksum over header+data on every open.
package datapool

import (
	"encoding/binary"
	"errors"
	"os"
	"time"

	"github.com/zeebo/blake3"

	dperrors "github.com/iamNilotpal/segcache/pkg/errors"
)

// Exists reports whether a file or directory exists at path, following the
// same true/false/error contract engine.openBacking needs to choose between
// Open and Create for a configured datapool path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// processStart anchors the "monotonic" timestamps stamped into a header:
// seconds/nanoseconds elapsed since this package was loaded, matching the
// original engine's process-relative Instant rather than a wall-clock
// reading.
var processStart = time.Now()

// PageSize is the unit every datapool file is sized in whole multiples of;
// the header occupies exactly one page.
const PageSize = 4096

// HeaderSize is the fixed byte width of the header region preceding the
// heap data in a persisted file.
const HeaderSize = PageSize

// Version is the on-disk format version. Bump this if the header layout or
// the heap encoding it describes ever changes incompatibly.
const Version uint64 = 0

// magic identifies a valid datapool file.
var magic = [8]byte{'P', 'E', 'L', 'I', 'K', 'A', 'N', '!'}

const (
	checksumOff          = 0
	checksumLen          = 32
	magicOff             = checksumOff + checksumLen
	versionOff           = magicOff + 8
	monotonicSOff        = versionOff + 8
	unixSOff             = monotonicSOff + 4
	monotonicNsOff       = unixSOff + 4
	unixNsOff            = monotonicNsOff + 8
	userVersionOff       = unixNsOff + 8
	headerPayloadEndOff  = userVersionOff + 8
)

// Pool is the storage abstraction the segment pool allocates its heap
// bytes from. Implementations decide whether those bytes ever touch disk.
type Pool interface {
	// AsSlice returns the heap data region (excluding any header).
	AsSlice() []byte
	// AsMutSlice returns a mutable view of the same region.
	AsMutSlice() []byte
	// Flush persists the current contents, a no-op for pools that don't
	// back onto durable storage.
	Flush() error
	// Len returns the size of the data region in bytes.
	Len() int
}

// Memory is a volatile datapool: a plain heap-allocated byte slice with no
// backing file. Flush is a no-op.
type Memory struct {
	buf []byte
}

// NewMemory allocates a zeroed Memory pool of the given size.
func NewMemory(size int) *Memory {
	return &Memory{buf: make([]byte, size)}
}

func (m *Memory) AsSlice() []byte    { return m.buf }
func (m *Memory) AsMutSlice() []byte { return m.buf }
func (m *Memory) Flush() error       { return nil }
func (m *Memory) Len() int           { return len(m.buf) }

// header is the fixed-layout metadata block written ahead of the heap data
// in a File pool. It is serialized by hand into a HeaderSize-byte buffer
// rather than via unsafe struct reinterpretation, since Go gives no layout
// guarantee equivalent to Rust's repr(packed).
type header struct {
	checksum       [checksumLen]byte
	createdMonoS   uint32
	createdUnixS   uint32
	createdMonoNs  uint64
	createdUnixNs  uint64
	userVersion    uint64
}

func encodeHeader(h header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[checksumOff:checksumOff+checksumLen], h.checksum[:])
	copy(buf[magicOff:magicOff+8], magic[:])
	binary.LittleEndian.PutUint64(buf[versionOff:], Version)
	binary.LittleEndian.PutUint32(buf[monotonicSOff:], h.createdMonoS)
	binary.LittleEndian.PutUint32(buf[unixSOff:], h.createdUnixS)
	binary.LittleEndian.PutUint64(buf[monotonicNsOff:], h.createdMonoNs)
	binary.LittleEndian.PutUint64(buf[unixNsOff:], h.createdUnixNs)
	binary.LittleEndian.PutUint64(buf[userVersionOff:], h.userVersion)
	// buf[headerPayloadEndOff:] stays zeroed padding out to HeaderSize.
	return buf
}

func decodeHeader(buf []byte) header {
	var h header
	copy(h.checksum[:], buf[checksumOff:checksumOff+checksumLen])
	h.createdMonoS = binary.LittleEndian.Uint32(buf[monotonicSOff:])
	h.createdUnixS = binary.LittleEndian.Uint32(buf[unixSOff:])
	h.createdMonoNs = binary.LittleEndian.Uint64(buf[monotonicNsOff:])
	h.createdUnixNs = binary.LittleEndian.Uint64(buf[unixNsOff:])
	h.userVersion = binary.LittleEndian.Uint64(buf[userVersionOff:])
	return h
}

func checkMagic(buf []byte) bool {
	for i, b := range magic {
		if buf[magicOff+i] != b {
			return false
		}
	}
	return true
}

func checkVersion(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[versionOff:])
}

// File is a datapool backed by a single file on disk: a HeaderSize header
// followed by the heap data, padded to a whole number of pages. Flush
// recomputes the BLAKE3 checksum over the header (with a zeroed checksum
// field) and the data region, then rewrites both to the file.
type File struct {
	path        string
	userVersion uint64
	buf         []byte
	created     time.Time
}

// Create makes a new File pool at path with the given data size, failing
// if the file already exists. The data region starts zeroed.
func Create(path string, dataSize int, userVersion uint64) (*File, error) {
	if exists, err := Exists(path); err != nil {
		return nil, dperrors.NewStorageError(err, dperrors.ErrorCodeIO, "failed to stat datapool file").WithPath(path)
	} else if exists {
		return nil, dperrors.NewStorageError(nil, dperrors.ErrorCodeIO, "datapool file already exists").WithPath(path)
	}

	f := &File{path: path, userVersion: userVersion, buf: make([]byte, dataSize), created: time.Now()}
	if err := f.Flush(); err != nil {
		return nil, err
	}
	return f, nil
}

// Open loads an existing File pool from path, verifying its magic,
// version, user version, and BLAKE3 checksum before returning it.
func Open(path string, dataSize int, userVersion uint64) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, dperrors.NewStorageError(err, dperrors.ErrorCodeIO, "failed to read datapool file").WithPath(path)
	}

	want := pagedSize(dataSize)
	if len(raw) != want {
		return nil, dperrors.NewStorageError(nil, dperrors.ErrorCodeSegmentCorrupted, "datapool file size mismatch").
			WithPath(path).WithDetail("want", want).WithDetail("got", len(raw))
	}

	headerBuf := raw[:HeaderSize]
	if !checkMagic(headerBuf) {
		return nil, dperrors.NewStorageError(nil, dperrors.ErrorCodeHeaderReadFailure, "datapool header not recognized").WithPath(path)
	}
	if v := checkVersion(headerBuf); v != Version {
		return nil, dperrors.NewStorageError(nil, dperrors.ErrorCodeVersionMismatch, "datapool format version mismatch").
			WithPath(path).WithDetail("want", Version).WithDetail("got", v)
	}

	h := decodeHeader(headerBuf)
	if h.userVersion != userVersion {
		return nil, dperrors.NewStorageError(nil, dperrors.ErrorCodeVersionMismatch, "datapool user version mismatch").
			WithPath(path).WithDetail("want", userVersion).WithDetail("got", h.userVersion)
	}

	storedChecksum := make([]byte, checksumLen)
	copy(storedChecksum, h.checksum[:])

	zeroed := make([]byte, HeaderSize)
	copy(zeroed, headerBuf)
	for i := checksumOff; i < checksumOff+checksumLen; i++ {
		zeroed[i] = 0
	}

	hasher := blake3.New()
	hasher.Write(zeroed)
	data := raw[HeaderSize : HeaderSize+dataSize]
	hasher.Write(data)
	sum := hasher.Sum(nil)

	if !checksumsEqual(storedChecksum, sum) {
		return nil, dperrors.NewStorageError(nil, dperrors.ErrorCodeChecksumMismatch, "datapool checksum mismatch").WithPath(path)
	}

	buf := make([]byte, dataSize)
	copy(buf, data)

	return &File{
		path:        path,
		userVersion: userVersion,
		buf:         buf,
		created:     time.Unix(int64(h.createdUnixS), int64(h.createdUnixNs%1e9)),
	}, nil
}

func pagedSize(dataSize int) int {
	pages := (HeaderSize + dataSize + PageSize - 1) / PageSize
	return pages * PageSize
}

func checksumsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f *File) AsSlice() []byte    { return f.buf }
func (f *File) AsMutSlice() []byte { return f.buf }
func (f *File) Len() int           { return len(f.buf) }

// CreatedAt returns the wall-clock creation instant of this pool. For a pool
// made by Create it is the moment Create ran; for a pool loaded by Open it is
// the unix timestamp read from the header, which every Flush restamps with
// the time of that Flush.
func (f *File) CreatedAt() time.Time { return f.created }

// Flush computes a fresh header (stamped with the current monotonic and
// unix clock readings) and a BLAKE3 checksum over header+data, then
// rewrites the whole file.
func (f *File) Flush() error {
	now := time.Now()
	elapsed := time.Since(processStart)
	h := header{
		createdMonoS:  uint32(elapsed / time.Second),
		createdUnixS:  uint32(now.Unix()),
		createdMonoNs: uint64(elapsed),
		createdUnixNs: uint64(now.UnixNano()),
		userVersion:   f.userVersion,
	}

	headerBuf := encodeHeader(h)

	hasher := blake3.New()
	hasher.Write(headerBuf)
	hasher.Write(f.buf)
	sum := hasher.Sum(nil)
	copy(headerBuf[checksumOff:checksumOff+checksumLen], sum)

	total := pagedSize(len(f.buf))
	out := make([]byte, total)
	copy(out, headerBuf)
	copy(out[HeaderSize:], f.buf)

	if err := os.WriteFile(f.path, out, 0644); err != nil {
		return dperrors.NewStorageError(err, dperrors.ErrorCodeIO, "failed to write datapool file").WithPath(f.path)
	}
	return nil
}
