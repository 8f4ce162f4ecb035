package reflow

import "errors"

// --- Exported Error Variables ---
// These errors represent the categories of failure a caller can check with
// errors.Is. Per-file failures are also recorded in Report.Errors.

var (
	// ErrConfigValidation indicates invalid or inconsistent Options.
	ErrConfigValidation = errors.New("configuration validation failed")

	// ErrInputNotFound indicates that an explicitly requested source path does not exist.
	// Returned before any output is written.
	ErrInputNotFound = errors.New("input path does not exist")

	// ErrReadFailed indicates a failure to read a source document.
	ErrReadFailed = errors.New("failed to read file")

	// ErrStatFailed indicates a failure to stat a source document.
	ErrStatFailed = errors.New("failed to get file stats")

	// ErrBinaryFile indicates that a document looks like binary data and cannot be reflowed.
	ErrBinaryFile = errors.New("binary file encountered")

	// ErrDecodeFailed indicates that the source charset could not be converted to UTF-8.
	ErrDecodeFailed = errors.New("failed to decode source text")

	// ErrEncodeFailed indicates that the reflowed text could not be converted back
	// to the source charset.
	ErrEncodeFailed = errors.New("failed to encode output text")

	// ErrWriteFailed indicates a failure writing the output document.
	// In in-place mode the original is untouched when this is returned.
	ErrWriteFailed = errors.New("failed to write output")

	// ErrBackupFailed indicates that the in-place backup could not be written.
	// The original is never overwritten when this is returned.
	ErrBackupFailed = errors.New("failed to write backup")

	// ErrBackupVerify indicates that the backup was written but its content does
	// not match the original bytes.
	ErrBackupVerify = errors.New("backup verification failed")

	// ErrChangesPending is returned by check mode when at least one document would change.
	ErrChangesPending = errors.New("documents would be reflowed")
)
