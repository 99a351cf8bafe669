package session

import "errors"

// Sentinel errors for store operations, checked with errors.Is().
//
// A missing session is not an error: Load returns an empty history for an
// unknown session identifier. These sentinels cover genuine storage I/O
// failures only.
var (
	// ErrStorageRead indicates a storage failure while loading history.
	ErrStorageRead = errors.New("storage read failed")

	// ErrStorageWrite indicates a storage failure while saving or deleting
	// history. The previously persisted value is left intact.
	ErrStorageWrite = errors.New("storage write failed")
)
