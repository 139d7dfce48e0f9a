package errors

// EngineError is the error type surfaced at the public engine boundary
// (spec §6/§7): ItemOversized, NoFreeSegments, HashTableInsertEx, NotFound,
// Exists, DataCorrupted. It embeds baseError for the common chaining and
// detail-capture machinery, and adds the context a caller needs to decide
// whether an error is worth retrying.
type EngineError struct {
	*baseError

	key       string // Key involved in the failed operation, if any.
	size      int    // Size of the item that triggered the error, if relevant.
	limit     int    // The limit that was exceeded, if relevant.
	operation string // Which public operation failed (Insert, Cas, Get, Delete...).
}

// NewEngineError creates a new engine-boundary error.
func NewEngineError(err error, code ErrorCode, msg string) *EngineError {
	return &EngineError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while maintaining the EngineError type.
func (ee *EngineError) WithMessage(msg string) *EngineError {
	ee.baseError.WithMessage(msg)
	return ee
}

// WithDetail adds contextual information while maintaining the EngineError type.
func (ee *EngineError) WithDetail(key string, value any) *EngineError {
	ee.baseError.WithDetail(key, value)
	return ee
}

// WithKey records which key was being processed when the error occurred.
func (ee *EngineError) WithKey(key string) *EngineError {
	ee.key = key
	return ee
}

// WithSize records the size of the item involved in the error.
func (ee *EngineError) WithSize(size int) *EngineError {
	ee.size = size
	return ee
}

// WithLimit records the limit that was exceeded.
func (ee *EngineError) WithLimit(limit int) *EngineError {
	ee.limit = limit
	return ee
}

// WithOperation records which public operation failed.
func (ee *EngineError) WithOperation(operation string) *EngineError {
	ee.operation = operation
	return ee
}

// Key returns the key involved in the failed operation.
func (ee *EngineError) Key() string { return ee.key }

// Size returns the size of the item that triggered the error.
func (ee *EngineError) Size() int { return ee.size }

// Limit returns the limit that was exceeded.
func (ee *EngineError) Limit() int { return ee.limit }

// Operation returns which public operation failed.
func (ee *EngineError) Operation() string { return ee.operation }

// NewItemOversizedError reports that an item cannot fit in a single segment.
func NewItemOversizedError(key string, size, limit int) *EngineError {
	return NewEngineError(nil, ErrorCodeItemOversized, "item exceeds segment payload capacity").
		WithKey(key).
		WithSize(size).
		WithLimit(limit).
		WithOperation("Insert")
}

// NewNoFreeSegmentsError reports that the allocator could not obtain a free
// segment even after invoking the eviction policy the configured number of
// times.
func NewNoFreeSegmentsError(key string) *EngineError {
	return NewEngineError(nil, ErrorCodeNoFreeSegments, "no free segments available after eviction retries").
		WithKey(key).
		WithOperation("Insert")
}

// NewHashTableInsertExError reports that the hash index rejected an insert
// because its bucket chain is exhausted.
func NewHashTableInsertExError(key string) *EngineError {
	return NewEngineError(nil, ErrorCodeHashTableInsertEx, "hash index insert exhausted bucket chain capacity").
		WithKey(key).
		WithOperation("Insert")
}

// NewNotFoundError reports that the requested key does not exist.
func NewNotFoundError(key, operation string) *EngineError {
	return NewEngineError(nil, ErrorCodeNotFound, "key not found").
		WithKey(key).
		WithOperation(operation)
}

// NewExistsError reports a CAS token mismatch: the item has changed since
// the caller last read it.
func NewExistsError(key string) *EngineError {
	return NewEngineError(nil, ErrorCodeExists, "item has been modified since it was last read").
		WithKey(key).
		WithOperation("Cas")
}

// NewDataCorruptedError reports that the persisted heap image failed
// integrity verification on open.
func NewDataCorruptedError(cause error, detail string) *EngineError {
	return NewEngineError(cause, ErrorCodeDataCorrupted, "persisted heap image failed integrity verification").
		WithDetail("detail", detail).
		WithOperation("Open")
}
