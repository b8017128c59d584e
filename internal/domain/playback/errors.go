package playback

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no playback session has the given id
	ErrSessionNotFound = errors.New("playback session not found")

	// ErrSessionStopped is returned when reporting on a stopped session
	ErrSessionStopped = errors.New("playback session stopped")
)

// ResolutionFailedError wraps a network or API failure during negotiation.
// The caller may retry, typically with a lower bitrate ceiling.
type ResolutionFailedError struct {
	ItemID string
	Err    error
}

func (e *ResolutionFailedError) Error() string {
	return fmt.Sprintf("failed to resolve playback for item %s: %v", e.ItemID, e.Err)
}

func (e *ResolutionFailedError) Unwrap() error {
	return e.Err
}

// Retryable reports that resolution may succeed with adjusted parameters
func (e *ResolutionFailedError) Retryable() bool {
	return true
}

// UnsupportedMediaError means no source is acceptable under the profile.
// Retrying without changing the profile will not help.
type UnsupportedMediaError struct {
	ItemID  string
	Profile string
	Reason  string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("item %s is not playable with profile %s: %s", e.ItemID, e.Profile, e.Reason)
}

// Retryable reports false
func (e *UnsupportedMediaError) Retryable() bool {
	return false
}

// IsRetryable reports whether err is a resolution failure worth retrying
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
