// Package rcerr defines the orchestration core's error kinds (spec §7).
//
// Each kind is a concrete type rather than a sentinel so callers can recover
// the structured fields (chunk id, profile name, exit code) with errors.As,
// while still chaining %w/errors.Is against the wrapped cause.
package rcerr

import (
	"strconv"

	"github.com/pkg/errors"
)

// ValidationError reports an invalid parameter at a public entry point.
// It is always fatal to the call that produced it; no state is mutated.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Field + ": " + e.Msg
}

func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// ProfileError reports that the external list tool failed while profiling
// a directory. The planner fails the whole run with the same error.
type ProfileError struct {
	Path string
	Err  error
}

func (e *ProfileError) Error() string {
	return "profile " + e.Path + ": " + e.Err.Error()
}

func (e *ProfileError) Unwrap() error { return e.Err }

func NewProfile(path string, cause error) *ProfileError {
	return &ProfileError{Path: path, Err: errors.Wrap(cause, "list tool")}
}

// PreflightError reports a pre-run check failure for one profile. It is
// recorded on that profile's result; the run continues to the next profile.
type PreflightError struct {
	Profile string
	Err     error
}

func (e *PreflightError) Error() string {
	return "preflight " + e.Profile + ": " + e.Err.Error()
}

func (e *PreflightError) Unwrap() error { return e.Err }

func NewPreflight(profile string, cause error) *PreflightError {
	return &PreflightError{Profile: profile, Err: errors.Wrap(cause, "preflight")}
}

// CopyError reports a copy-tool exit code mapping to Error/Fatal severity.
type CopyError struct {
	ChunkID  int64
	ExitCode int
	Err      error
}

func (e *CopyError) Error() string {
	return "copy chunk " + strconv.FormatInt(e.ChunkID, 10) + ": exit " + strconv.Itoa(e.ExitCode) + ": " + e.Err.Error()
}

func (e *CopyError) Unwrap() error { return e.Err }

func NewCopy(chunkID int64, exitCode int, cause error) *CopyError {
	return &CopyError{ChunkID: chunkID, ExitCode: exitCode, Err: errors.Wrap(cause, "copy tool")}
}

// MismatchError reports a copy-tool exit indicating a file mismatch. Its
// effective severity is per-profile overridable (spec §4.4) and defaults to
// Warning.
type MismatchError struct {
	ChunkID int64
	Msg     string
}

func (e *MismatchError) Error() string {
	return "mismatch chunk " + strconv.FormatInt(e.ChunkID, 10) + ": " + e.Msg
}

func NewMismatch(chunkID int64, msg string) *MismatchError {
	return &MismatchError{ChunkID: chunkID, Msg: msg}
}

// SnapshotError reports a snapshot create/delete failure. A create failure
// aborts the profile; a delete failure is logged at Warning and does not
// fail the run.
type SnapshotError struct {
	Op  string // "create" or "delete"
	Err error
}

func (e *SnapshotError) Error() string {
	return "snapshot " + e.Op + ": " + e.Err.Error()
}

func (e *SnapshotError) Unwrap() error { return e.Err }

func NewSnapshot(op string, cause error) *SnapshotError {
	return &SnapshotError{Op: op, Err: errors.Wrap(cause, "snapshot tool")}
}

// CircuitBreakerTripError reports that consecutive chunk failures reached
// the configured threshold. StopRequested is already set by the time this
// is constructed.
type CircuitBreakerTripError struct {
	ConsecutiveFailures int64
	LastChunkID         int64
	LastErr             string
}

func (e *CircuitBreakerTripError) Error() string {
	return "circuit breaker tripped after " + strconv.FormatInt(e.ConsecutiveFailures, 10) +
		" consecutive failures (last chunk " + strconv.FormatInt(e.LastChunkID, 10) + "): " + e.LastErr
}

// LaunchError reports that a child copy process failed to start. It is
// treated as a per-chunk failure without an exit code.
type LaunchError struct {
	ChunkID int64
	Err     error
}

func (e *LaunchError) Error() string {
	return "launch chunk " + strconv.FormatInt(e.ChunkID, 10) + ": " + e.Err.Error()
}

func (e *LaunchError) Unwrap() error { return e.Err }

func NewLaunch(chunkID int64, cause error) *LaunchError {
	return &LaunchError{ChunkID: chunkID, Err: errors.Wrap(cause, "launch")}
}

