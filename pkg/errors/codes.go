package errors

// ErrorCode represents a standardized way to categorize different types of errors.
type ErrorCode string

// Base error codes represent the fundamental categories of failures that can
// occur across any software system. These codes provide the foundation layer
// of error classification.
const (
	// ErrorCodeIO represents failures in input/output operations across any
	// system boundary. This includes file system operations like reading or
	// writing the persisted heap image, and device I/O when accessing storage
	// hardware.
	ErrorCodeIO ErrorCode = "IO_ERROR"

	// ErrorCodeInvalidInput represents client-side errors where the provided
	// data doesn't meet the system's requirements or constraints. This maps
	// to HTTP 400-series errors and indicates problems with the request itself
	// rather than system failures.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrorCodeInternal represents unexpected system failures that don't fit
	// into other categories. These are the equivalent of HTTP 500 errors and
	// indicate bugs, assertion failures, or other programming errors that
	// shouldn't occur during normal operation.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Storage-specific error codes extend the base error taxonomy to handle the
// unique failure modes that occur in the persisted heap image.
const (
	// ErrorCodeSegmentCorrupted indicates that a segment's data has been
	// damaged or is in an inconsistent state.
	ErrorCodeSegmentCorrupted ErrorCode = "SEGMENT_CORRUPTED"

	// ErrorCodeHeaderReadFailure occurs when the system cannot read the header
	// portion of the datapool file. Headers contain critical metadata about the
	// heap image, so header read failures prevent recovery of the whole image.
	ErrorCodeHeaderReadFailure ErrorCode = "HEADER_READ_FAILURE"

	// ErrorCodePayloadReadFailure indicates problems reading the raw heap bytes
	// from the datapool file after successfully reading the header.
	ErrorCodePayloadReadFailure ErrorCode = "PAYLOAD_READ_FAILURE"

	// ErrorCodeChecksumMismatch indicates that the BLAKE3 checksum recorded in
	// the datapool header does not match the recomputed checksum of the heap.
	ErrorCodeChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"

	// ErrorCodeVersionMismatch indicates the datapool's on-disk format or
	// user version does not match what this engine expects.
	ErrorCodeVersionMismatch ErrorCode = "VERSION_MISMATCH"

	// ErrorCodePermissionDenied indicates insufficient permissions to access a resource.
	// This is distinct from generic IO errors because it has a specific resolution path:
	// the user needs to adjust file/directory permissions or run with elevated privileges.
	ErrorCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// ErrorCodeDiskFull indicates that the storage device has run out of space.
	// This requires specific handling like cleanup operations or alerting administrators.
	ErrorCodeDiskFull ErrorCode = "DISK_FULL"

	// ErrorCodeFilesystemReadonly indicates that the filesystem is mounted read-only.
	// This requires administrative intervention to remount the filesystem with write permissions.
	ErrorCodeFilesystemReadonly ErrorCode = "FILESYSTEM_READONLY"
)

// Index-specific error codes cover failures in the hash index (spec §4.2).
const (
	// ErrorCodeIndexKeyNotFound indicates a lookup found no matching item-info
	// slot for the queried key.
	ErrorCodeIndexKeyNotFound ErrorCode = "INDEX_KEY_NOT_FOUND"

	// ErrorCodeIndexInvalidSegmentID indicates an item-info slot referenced a
	// segment id that the segment pool does not recognize as live.
	ErrorCodeIndexInvalidSegmentID ErrorCode = "INDEX_INVALID_SEGMENT_ID"

	// ErrorCodeIndexChainExhausted indicates the bucket's overflow chain has
	// reached the maximum length (16) and the overflow area itself is full.
	ErrorCodeIndexChainExhausted ErrorCode = "INDEX_CHAIN_EXHAUSTED"

	// ErrorCodeIndexCorrupted indicates the bucket array failed an internal
	// consistency check (chain length out of range, relink target mismatch).
	ErrorCodeIndexCorrupted ErrorCode = "INDEX_CORRUPTED"

	// ErrorCodeIndexCasMismatch indicates a try_update_cas call's CAS value
	// did not match the bucket's current CAS counter.
	ErrorCodeIndexCasMismatch ErrorCode = "INDEX_CAS_MISMATCH"
)

// Engine-level error codes surfaced at the public boundary (spec §6/§7).
const (
	// ErrorCodeItemOversized indicates an item would not fit within a single
	// segment's payload area, even an empty one.
	ErrorCodeItemOversized ErrorCode = "ITEM_OVERSIZED"

	// ErrorCodeNoFreeSegments indicates the allocator could not obtain a free
	// segment even after invoking the eviction policy.
	ErrorCodeNoFreeSegments ErrorCode = "NO_FREE_SEGMENTS"

	// ErrorCodeHashTableInsertEx indicates the hash index rejected an insert
	// because its bucket chain is at the maximum length and the overflow
	// area is exhausted.
	ErrorCodeHashTableInsertEx ErrorCode = "HASH_TABLE_INSERT_EX"

	// ErrorCodeNotFound indicates the requested key does not exist.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrorCodeExists indicates a CAS token did not match the current value's
	// token, i.e. the item has since been modified.
	ErrorCodeExists ErrorCode = "EXISTS"

	// ErrorCodeDataCorrupted indicates the persisted heap image failed
	// integrity verification on open.
	ErrorCodeDataCorrupted ErrorCode = "DATA_CORRUPTED"
)
