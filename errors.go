package prollipop

import "errors"

// Sentinel errors forming the error taxonomy from the design doc. Callers
// should use errors.Is against these, since call sites wrap them with
// fmt.Errorf("...: %w", ...) to attach context (digest, key, level, ...).
var (
	// ErrNotFound is returned when a block store lookup misses.
	ErrNotFound = errors.New("prollipop: not found")

	// ErrInvalidBucket is returned when a decoded bucket fails a shape,
	// order, or boundary check.
	ErrInvalidBucket = errors.New("prollipop: invalid bucket")

	// ErrPrefixMismatch is returned when a loaded bucket's (average, level)
	// does not match what the caller expected.
	ErrPrefixMismatch = errors.New("prollipop: prefix mismatch")

	// ErrRangeMismatch is returned when a loaded bucket's first or last
	// entry violates the exclusive/inclusive range the caller expected.
	ErrRangeMismatch = errors.New("prollipop: range mismatch")

	// ErrInsufficientHash is returned when a cursor descends through a
	// pointer entry whose value is shorter than a full Digest, so it cannot
	// name a child bucket.
	ErrInsufficientHash = errors.New("prollipop: insufficient hash length")

	// ErrUnsortedUpdates is returned when an input update batch is not
	// sorted, contains duplicate keys, or a later batch does not begin
	// strictly after the previous batch's last key.
	ErrUnsortedUpdates = errors.New("prollipop: unsorted or duplicate updates")

	// ErrCursorLocked is returned when a mutating cursor operation is
	// attempted while another is already in flight on the same cursor.
	ErrCursorLocked = errors.New("prollipop: cursor locked")

	// ErrLevelOutOfRange is returned when a cursor operation requests a
	// level above the root or below 0.
	ErrLevelOutOfRange = errors.New("prollipop: level out of range")

	// ErrMaxLevelExceeded is returned when the mutation engine fails to
	// converge on a new root within MaxLevel levels.
	ErrMaxLevelExceeded = errors.New("prollipop: max level exceeded without convergence")
)
