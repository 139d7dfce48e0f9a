package errors

// IndexError provides specialized error handling for hash-index-related
// operations. This structure extends the base error system with index-specific
// context while properly supporting method chaining through all base error
// methods.
type IndexError struct {
	// Embed the base error to inherit all standard error functionality
	// including error chaining, structured details, and error codes.
	*baseError

	// Identifies which key was being processed when the error occurred.
	// This is particularly valuable for debugging because it tells you exactly
	// which piece of data was involved in the failed operation.
	key string

	// Indicates which segment was involved in the error, if applicable.
	// This helps correlate index errors with specific segments and can
	// guide recovery operations or eviction decisions.
	segmentID uint32

	// Describes what index operation was being performed when the
	// error occurred (e.g., "Get", "Insert", "Delete", "RelinkItem"). This
	// context helps understand the system state and caller actions that led
	// to the error.
	operation string

	// Captures the bucket chain length at the time of the error. This helps
	// diagnose capacity-related issues (chain at MaxChainLength, overflow area
	// exhausted).
	chainLength int

	// Captures the CAS value provided by the caller, when relevant (e.g.
	// TryUpdateCas mismatches).
	cas uint32
}

// NewIndexError creates a new index-specific error with the provided context.
// This constructor follows the same pattern as other error types in the system,
// taking a causing error, error code, and descriptive message.
func NewIndexError(err error, code ErrorCode, msg string) *IndexError {
	return &IndexError{
		baseError: NewBaseError(err, code, msg),
	}
}

// Override base error methods to return *IndexError instead of *baseError.

// WithMessage updates the error message while maintaining the IndexError type.
func (ie *IndexError) WithMessage(msg string) *IndexError {
	ie.baseError.WithMessage(msg)
	return ie
}

// WithCode sets the error code while preserving the IndexError type.
func (ie *IndexError) WithCode(code ErrorCode) *IndexError {
	ie.baseError.WithCode(code)
	return ie
}

// WithDetail adds contextual information while maintaining the IndexError type.
func (ie *IndexError) WithDetail(key string, value any) *IndexError {
	ie.baseError.WithDetail(key, value)
	return ie
}

// Index-specific methods that add domain-specific context to the error.
// These methods enable comprehensive error reporting for index operations
// while maintaining the fluent interface pattern for readable error construction.

// WithKey records which key was being processed when the error occurred.
func (ie *IndexError) WithKey(key string) *IndexError {
	ie.key = key
	return ie
}

// WithSegmentID captures which segment was involved in the error.
func (ie *IndexError) WithSegmentID(segmentID uint32) *IndexError {
	ie.segmentID = segmentID
	return ie
}

// WithOperation records what index operation was being performed.
func (ie *IndexError) WithOperation(operation string) *IndexError {
	ie.operation = operation
	return ie
}

// WithChainLength captures the bucket chain length observed when the error
// occurred.
func (ie *IndexError) WithChainLength(length int) *IndexError {
	ie.chainLength = length
	return ie
}

// WithCas records the CAS value supplied by the caller.
func (ie *IndexError) WithCas(cas uint32) *IndexError {
	ie.cas = cas
	return ie
}

// Getter methods provide access to the IndexError-specific context.

// Key returns the key that was being processed when the error occurred.
func (ie *IndexError) Key() string {
	return ie.key
}

// SegmentID returns the segment identifier associated with the error.
func (ie *IndexError) SegmentID() uint32 {
	return ie.segmentID
}

// Operation returns the name of the operation that was being performed.
func (ie *IndexError) Operation() string {
	return ie.operation
}

// ChainLength returns the bucket chain length observed when the error occurred.
func (ie *IndexError) ChainLength() int {
	return ie.chainLength
}

// Cas returns the CAS value supplied by the caller, if any.
func (ie *IndexError) Cas() uint32 {
	return ie.cas
}

// Helper functions for creating common index errors with appropriate context.

// NewKeyNotFoundError creates a specialized error for missing keys.
func NewKeyNotFoundError(key string, operation string) *IndexError {
	return NewIndexError(nil, ErrorCodeIndexKeyNotFound, "key not found in hash index").
		WithKey(key).
		WithOperation(operation)
}

// NewChainExhaustedError creates an error for a bucket chain that cannot grow
// any further: it is already at MaxChainLength and the overflow bucket area has
// no capacity left.
func NewChainExhaustedError(key string, chainLength int) *IndexError {
	return NewIndexError(nil, ErrorCodeIndexChainExhausted, "bucket chain exhausted, cannot insert").
		WithKey(key).
		WithOperation("Insert").
		WithChainLength(chainLength)
}

// NewCasMismatchError creates an error for a CAS value that no longer matches
// the bucket's current CAS counter.
func NewCasMismatchError(key string, cas uint32) *IndexError {
	return NewIndexError(nil, ErrorCodeIndexCasMismatch, "CAS value does not match current bucket CAS").
		WithKey(key).
		WithOperation("TryUpdateCas").
		WithCas(cas)
}

// NewIndexCorruptionError creates an error for index corruption scenarios:
// chain length out of the [0,16] range, or a relink whose expected
// (tag, segment, offset) no longer matches the slot found.
func NewIndexCorruptionError(operation string, cause error) *IndexError {
	return NewIndexError(cause, ErrorCodeIndexCorrupted, "hash index data structure corrupted").
		WithOperation(operation)
}
