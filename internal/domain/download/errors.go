package download

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrJobNotFound is returned when no job has the given id
	ErrJobNotFound = errors.New("download job not found")

	// ErrJobExists is returned when an item already has a queued or active job
	ErrJobExists = errors.New("download job already exists for item")

	// ErrJobActive is returned when removing a job that has not reached a terminal state
	ErrJobActive = errors.New("download job is not finished")

	// ErrInvalidTransition is returned when a job state change is not allowed
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrCancelled signals cooperative cancellation. It is not a failure.
	ErrCancelled = errors.New("download cancelled")

	// ErrEntryNotFound is returned when the offline catalog has no entry for an item
	ErrEntryNotFound = errors.New("offline entry not found")

	// ErrManagerStopped is returned when the manager loop is no longer running
	ErrManagerStopped = errors.New("download manager stopped")
)

// EmptyManifestError is returned when a playlist lists no segments
type EmptyManifestError struct {
	URL string
}

func (e *EmptyManifestError) Error() string {
	return fmt.Sprintf("manifest %s has no segments", e.URL)
}

// SegmentFetchError is returned when a segment cannot be fetched. The
// whole job fails; there is no per-segment retry.
type SegmentFetchError struct {
	Index int
	URL   string
	Err   error
}

func (e *SegmentFetchError) Error() string {
	return fmt.Sprintf("failed to fetch segment %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *SegmentFetchError) Unwrap() error {
	return e.Err
}

// RemuxProcessError is returned when the remux process exits with an error
type RemuxProcessError struct {
	ExitCode int
	LogTail  []string
	Err      error
}

func (e *RemuxProcessError) Error() string {
	msg := fmt.Sprintf("remux process failed with exit code %d", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.LogTail) > 0 {
		msg += "\n" + strings.Join(e.LogTail, "\n")
	}
	return msg
}

func (e *RemuxProcessError) Unwrap() error {
	return e.Err
}
