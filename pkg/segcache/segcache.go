// Package segcache provides a high-performance, in-memory key/value cache
// engine built around a slab-like segment pool, a bulk-chained hash index,
// and TTL-bucketed eager expiration. It is designed for workloads needing
// predictable, low-overhead eviction under memory pressure — web/feed
// caching, session storage, and similar hot-path lookup tables.
package segcache

import (
	"context"

	"github.com/iamNilotpal/segcache/internal/engine"
	"github.com/iamNilotpal/segcache/internal/item"
	"github.com/iamNilotpal/segcache/pkg/logger"
	"github.com/iamNilotpal/segcache/pkg/options"
)

// Instance represents a running segcache engine. It encapsulates the
// underlying coordinator responsible for segment allocation, hash index
// lookups, TTL bucketing, and eviction, plus the configuration options
// applied to this particular instance.
//
// Instance is the primary entry point for interacting with the cache,
// providing methods for inserting, reading, and removing key/value pairs.
type Instance struct {
	engine  *engine.Engine   // The underlying cache engine handling read/write operations.
	options *options.Options // Configuration options applied to this instance.
}

// NewInstance creates and initializes a new segcache Instance.
func NewInstance(ctx context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	eng, err := engine.New(ctx, &engine.Config{Logger: log, Options: &defaultOpts})
	if err != nil {
		return nil, err
	}

	return &Instance{engine: eng, options: &defaultOpts}, nil
}

// Insert writes key/value/optional as a new record with the given
// coarse-second TTL, transparently replacing any existing record for the
// same key.
func (i *Instance) Insert(key string, value, optional []byte, ttl uint32) error {
	return i.engine.Insert([]byte(key), value, optional, ttl)
}

// Cas performs a compare-and-swap: the write only proceeds if cas still
// matches the key's current bucket CAS.
func (i *Instance) Cas(key string, value, optional []byte, ttl uint32, cas uint32) error {
	return i.engine.Cas([]byte(key), value, optional, ttl, cas)
}

// Get returns the record for key and updates its frequency counter.
func (i *Instance) Get(key string) (item.Item, bool) {
	return i.engine.Get([]byte(key))
}

// GetNoFreqIncr returns the record for key without updating its frequency
// counter.
func (i *Instance) GetNoFreqIncr(key string) (item.Item, bool) {
	return i.engine.GetNoFreqIncr([]byte(key))
}

// Delete removes key's record, reporting whether anything was removed.
func (i *Instance) Delete(key string) bool {
	return i.engine.Delete([]byte(key))
}

// WrappingAdd adds delta to the little-endian u64 stored as key's value,
// wrapping on overflow.
func (i *Instance) WrappingAdd(key string, delta uint64) error {
	return i.engine.WrappingAdd([]byte(key), delta)
}

// SaturatingSub subtracts delta from the little-endian u64 stored as key's
// value, floored at zero.
func (i *Instance) SaturatingSub(key string, delta uint64) error {
	return i.engine.SaturatingSub([]byte(key), delta)
}

// Expire runs an eager expiration pass over every TTL bucket and returns
// the number of items expired.
func (i *Instance) Expire() int {
	return i.engine.Expire()
}

// Items walks every segment and sums its live item count. A diagnostic
// operation, not a cached counter.
func (i *Instance) Items() int {
	return i.engine.Items()
}

// FreeSegments returns how many segments currently sit on the free queue.
func (i *Instance) FreeSegments() int {
	return i.engine.FreeSegments()
}

// Flush persists the current heap bytes to the configured datapool path,
// a no-op when no path was configured.
func (i *Instance) Flush() error {
	return i.engine.Flush()
}

// Close gracefully shuts down the instance: stops the background
// maintenance loop and flushes the heap to its backing datapool, if one is
// configured.
func (i *Instance) Close(ctx context.Context) error {
	return i.engine.Close()
}
