package main

import "fmt"

// ValidationError means the input audio is bad or missing. The caller has
// to fix the input; nothing retries this automatically.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("audio validation failed: %s (%s)", e.Path, e.Reason)
}

// TranscriptionError wraps a speech engine failure with the file it was
// working on.
type TranscriptionError struct {
	Path string
	Err  error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed for %s: %v", e.Path, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// RenderError wraps a renderer failure for one export job.
type RenderError struct {
	Format string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering %s export failed: %v", e.Format, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// StateError is an illegal lifecycle transition. It is always a caller
// bug and leaves the entity's state untouched.
type StateError struct {
	Entity string
	ID     int64
	From   ProcessingStatus
	To     ProcessingStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal %s %d transition: %s -> %s", e.Entity, e.ID, e.From, e.To)
}

// PersistenceError means a storage write failed mid-transition. It is
// propagated upward; the in-memory state is not settled until the write
// succeeds.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
