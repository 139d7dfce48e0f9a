// Package engine implements the segcache storage engine's core coordinator.
//
// The engine is the central entry point for every cache operation. It
// orchestrates four subsystems:
//   - Segments: the slab-like fixed-size segment pool, sole owner of heap bytes
//   - HashIndex: the bulk-chained tag hashtable mapping keys to (seg_id, offset)
//   - TtlBuckets: partitions segments by TTL and drives eager expiration
//   - Eviction: reclaims whole segments back to the free queue under pressure
//
// The engine is built for a single writer and is not internally
// synchronized (spec §5); concurrent readers are supported opportunistically
// through the hash index's get/re-check pattern. A background goroutine
// refreshes the coarse clock and runs eager TTL expiration on a fixed
// interval so expired segments are reclaimed without waiting for a caller
// to notice.
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/iamNilotpal/segcache/internal/eviction"
	"github.com/iamNilotpal/segcache/internal/hashindex"
	"github.com/iamNilotpal/segcache/internal/item"
	"github.com/iamNilotpal/segcache/internal/segment"
	"github.com/iamNilotpal/segcache/internal/ttlbucket"
	"github.com/iamNilotpal/segcache/pkg/clock"
	"github.com/iamNilotpal/segcache/pkg/datapool"
	segcerrors "github.com/iamNilotpal/segcache/pkg/errors"
	"github.com/iamNilotpal/segcache/pkg/options"
)

// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
var ErrEngineClosed = errors.New("operation failed: cannot access closed engine")

// maxAllocRetries bounds how many times an allocation invokes the eviction
// policy before surfacing NoFreeSegments (spec §7: "the allocator invokes
// the eviction policy up to 3 times before surfacing NoFreeSegments").
const maxAllocRetries = 3

// numericValueSize is the fixed width of the values wrapping_add and
// saturating_sub operate on — a little-endian u64, matching the original
// engine's numeric-value convention (spec §6).
const numericValueSize = 8

// Engine coordinates every cache operation: segment allocation, hash index
// lookups and mutations, TTL bucketing, and eviction. It manages the
// lifecycle of all internal components and is the primary interface
// callers use to operate the cache.
type Engine struct {
	options *options.Options   // options holds the configuration this engine was built with.
	log     *zap.SugaredLogger // log provides structured logging throughout the engine.
	closed  atomic.Bool        // closed tracks the engine's lifecycle state.

	clock   *clock.Coarse        // clock is the shared coarse-second clock every subsystem reads timestamps from.
	pool    *segment.Pool        // pool owns the byte heap and segment headers.
	index   *hashindex.HashIndex // index maps keys to (segment, offset).
	buckets *ttlbucket.TtlBuckets
	evictor eviction.Policy

	stop chan struct{} // stop signals the background maintenance loop to exit.
	done chan struct{} // done is closed once the maintenance loop has returned.
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New wires the segment pool, hash index, TTL buckets, and eviction policy
// together per the supplied options, then starts the background
// maintenance loop (clock refresh plus eager expiration).
func New(ctx context.Context, config *Config) (*Engine, error) {
	opts := config.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	clk := clock.New()

	backing, err := openBacking(opts)
	if err != nil {
		return nil, err
	}

	pool, err := segment.New(segment.Config{
		SegmentSize: opts.SegmentOptions.Size,
		HeapSize:    opts.SegmentOptions.HeapSize,
		ItemMagic:   opts.ItemMagic,
		Backing:     backing,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	idx := hashindex.New(hashindex.Config{
		HashPower:      opts.HashTableOptions.HashPower,
		OverflowFactor: opts.HashTableOptions.OverflowFactor,
		ItemMagic:      opts.ItemMagic,
		Clock:          clk,
		Reader:         pool,
		Logger:         log,
	})

	buckets := ttlbucket.New(ttlbucket.Config{Pool: pool, Index: idx, Clock: clk, Logger: log})

	evictor := eviction.New(
		eviction.Config{Pool: pool, Index: idx, Buckets: buckets, Clock: clk, Logger: log},
		*opts.EvictionOptions,
	)

	e := &Engine{
		options: opts,
		log:     log,
		clock:   clk,
		pool:    pool,
		index:   idx,
		buckets: buckets,
		evictor: evictor,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go e.maintain(opts.ExpireInterval)

	log.Infow("engine initialized",
		"segments", pool.SegmentCount(),
		"segment_size", pool.SegmentSize(),
		"eviction_policy", opts.EvictionOptions.Kind,
	)

	return e, nil
}

// openBacking resolves the datapool.Pool the segment pool's heap bytes
// should live in. An empty DatapoolPath means volatile, in-memory-only
// storage (segment.New defaults to datapool.Memory on its own). A
// non-empty path is opened if a heap image already exists there, or
// created fresh otherwise — recovering the prior run's bytes across a
// restart (spec §6).
func openBacking(opts *options.Options) (datapool.Pool, error) {
	if opts.DatapoolPath == "" {
		return nil, nil
	}

	size := int(opts.SegmentOptions.HeapSize)

	exists, err := datapool.Exists(opts.DatapoolPath)
	if err != nil {
		return nil, segcerrors.NewEngineError(err, segcerrors.ErrorCodeIO, "failed to stat datapool path").
			WithDetail("path", opts.DatapoolPath)
	}
	if exists {
		return datapool.Open(opts.DatapoolPath, size, 0)
	}
	return datapool.Create(opts.DatapoolPath, size, 0)
}

// maintain refreshes the coarse clock and runs eager TTL expiration on
// every tick until Close signals stop (spec §4.3: "run as a periodic
// maintenance operation rather than solely on demand").
func (e *Engine) maintain(interval time.Duration) {
	defer close(e.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.clock.Refresh()
			if n := e.buckets.Expire(); n > 0 {
				e.log.Debugw("maintenance pass expired items", "count", n)
			}
		case <-e.stop:
			return
		}
	}
}

// Close stops the background maintenance loop, flushes the heap to its
// backing datapool if one is configured, and marks the engine unusable.
// Safe to call once; a second call returns ErrEngineClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}
	close(e.stop)
	<-e.done
	return e.pool.Flush()
}

// Flush persists the current heap bytes to the configured datapool path
// without closing the engine, a no-op when no DatapoolPath was set (spec
// §6: heap image persistence).
func (e *Engine) Flush() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.pool.Flush()
}

// reserve asks the TTL buckets for room to write a size-byte record,
// invoking the eviction policy and retrying up to maxAllocRetries times
// when the pool is exhausted before giving up (spec §7).
func (e *Engine) reserve(key string, ttl uint32, size int) (segID uint32, buf []byte, err error) {
	segID, buf, err = e.buckets.Reserve(key, ttl, size)
	for attempt := 0; err != nil && isNoFreeSegments(err) && attempt < maxAllocRetries; attempt++ {
		if evictErr := e.evictor.Evict(); evictErr != nil {
			break
		}
		segID, buf, err = e.buckets.Reserve(key, ttl, size)
	}
	if err != nil {
		return segment.NoID, nil, err
	}
	return segID, buf, nil
}

// write encodes key/value/optional into a freshly reserved record and
// links it into the hash index, the shared tail of Insert and Cas.
func (e *Engine) write(key, value, optional []byte, ttl uint32) error {
	size := item.Size(len(key), len(value), len(optional), e.options.ItemMagic)
	if uint32(size) > e.pool.SegmentSize() {
		return segcerrors.NewItemOversizedError(string(key), size, int(e.pool.SegmentSize()))
	}

	segID, buf, err := e.reserve(string(key), ttl, size)
	if err != nil {
		return err
	}

	item.Encode(buf, key, value, optional, e.options.ItemMagic)
	offset := e.pool.Header(segID).WriteOffset() - uint32(size)

	replacedSeg, replaced, err := e.index.InsertLocated(key, segID, offset)
	if err != nil {
		return segcerrors.NewHashTableInsertExError(string(key))
	}
	if replaced {
		e.triggerCompact(replacedSeg)
	}
	return nil
}

// triggerCompact gives the configured eviction policy a chance to run the
// no-evict merge-compaction pass (spec §4.4) over the segment an item was
// just removed from. Policies other than Merge don't implement this and
// are silently skipped.
func (e *Engine) triggerCompact(segID uint32) {
	if ct, ok := e.evictor.(eviction.CompactTrigger); ok {
		ct.TryCompact(segID)
	}
}

// Insert writes key/value/optional as a new record with the given
// coarse-second TTL, transparently replacing any existing record for the
// same key (spec §6).
func (e *Engine) Insert(key, value, optional []byte, ttl uint32) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if len(key) == 0 {
		return segcerrors.NewItemOversizedError(string(key), 0, 0).WithMessage("key must not be empty")
	}
	return e.write(key, value, optional, ttl)
}

// Cas performs a compare-and-swap: the write only proceeds if cas still
// matches the key's current bucket CAS — NotFound if the key doesn't
// exist, Exists if the CAS has moved on since the caller last read it
// (spec §6, §8 scenario 5).
func (e *Engine) Cas(key, value, optional []byte, ttl uint32, cas uint32) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	if err := e.index.TryUpdateCas(key, cas); err != nil {
		return translateCasErr(err, key)
	}
	return e.write(key, value, optional, ttl)
}

// Get returns the record for key and updates its frequency counter (spec §6).
func (e *Engine) Get(key []byte) (item.Item, bool) {
	return e.index.Get(key)
}

// GetNoFreqIncr returns the record for key without updating its frequency
// counter, used internally by wrapping_add/saturating_sub so a counter
// update doesn't itself count as a cache hit (spec §6).
func (e *Engine) GetNoFreqIncr(key []byte) (item.Item, bool) {
	return e.index.GetNoFreqIncr(key)
}

// Delete removes key's record, reporting whether anything was removed
// (spec §6). A successful delete also gives the eviction policy a chance
// to run its no-evict merge-compaction pass over the now-lighter segment
// (spec §4.4).
func (e *Engine) Delete(key []byte) bool {
	segID, removed := e.index.DeleteLocated(key)
	if removed {
		e.triggerCompact(segID)
	}
	return removed
}

// WrappingAdd adds delta to the little-endian u64 stored as key's value,
// wrapping on overflow. The record's bytes are mutated in place — no new
// record is written and no index entry changes, since the value's size
// never changes (spec §6: "wrapping_add(key, delta) for numeric values").
func (e *Engine) WrappingAdd(key []byte, delta uint64) error {
	val, err := e.numericValue(key, "WrappingAdd")
	if err != nil {
		return err
	}
	current := binary.LittleEndian.Uint64(val)
	binary.LittleEndian.PutUint64(val, current+delta)
	return nil
}

// SaturatingSub subtracts delta from the little-endian u64 stored as key's
// value, floored at zero, mutating in place exactly as WrappingAdd does
// (spec §6: "saturating_sub(key, delta) for numeric values").
func (e *Engine) SaturatingSub(key []byte, delta uint64) error {
	val, err := e.numericValue(key, "SaturatingSub")
	if err != nil {
		return err
	}
	current := binary.LittleEndian.Uint64(val)
	if delta >= current {
		binary.LittleEndian.PutUint64(val, 0)
	} else {
		binary.LittleEndian.PutUint64(val, current-delta)
	}
	return nil
}

// numericValue fetches key's value bytes (without a frequency bump) and
// checks it is exactly one 8-byte numeric word wide.
func (e *Engine) numericValue(key []byte, operation string) ([]byte, error) {
	it, ok := e.index.GetNoFreqIncr(key)
	if !ok {
		return nil, segcerrors.NewNotFoundError(string(key), operation)
	}

	val := it.Value()
	if len(val) != numericValueSize {
		return nil, segcerrors.NewEngineError(nil, segcerrors.ErrorCodeInvalidInput, "value is not an 8-byte numeric").
			WithKey(string(key)).
			WithOperation(operation)
	}
	return val, nil
}

// Expire runs an eager expiration pass over every TTL bucket, clearing any
// segment whose TTL has elapsed, and returns the number of items expired
// (spec §6: "expire() → items_expired").
func (e *Engine) Expire() int {
	return e.buckets.Expire()
}

// Items walks every segment and sums its live item count. A diagnostic
// operation, not a cached counter (spec §6: "items() → usize (diagnostic;
// walks all segments)").
func (e *Engine) Items() int {
	total := 0
	for id := uint32(1); id <= uint32(e.pool.SegmentCount()); id++ {
		total += int(e.pool.Header(id).LiveItems())
	}
	return total
}

// FreeSegments returns how many segments currently sit on the free queue,
// a diagnostic companion to Items used throughout the test scenarios (spec
// §8).
func (e *Engine) FreeSegments() int {
	return e.pool.FreeCount()
}

// isNoFreeSegments reports whether err is the engine-boundary
// NoFreeSegments error, the only retriable allocation failure.
func isNoFreeSegments(err error) bool {
	var ee *segcerrors.EngineError
	if errors.As(err, &ee) {
		return ee.Code() == segcerrors.ErrorCodeNoFreeSegments
	}
	return false
}

// translateCasErr maps TryUpdateCas's index-level errors onto the public
// NotFound/Exists pair Cas promises (spec §6, §9 open question (a)).
func translateCasErr(err error, key []byte) error {
	var ie *segcerrors.IndexError
	if errors.As(err, &ie) {
		switch ie.Code() {
		case segcerrors.ErrorCodeIndexKeyNotFound:
			return segcerrors.NewNotFoundError(string(key), "Cas")
		case segcerrors.ErrorCodeIndexCasMismatch:
			return segcerrors.NewExistsError(string(key))
		}
	}
	return err
}
