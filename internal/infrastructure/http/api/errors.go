package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
	playbackapp "github.com/narwhalmedia/narwhal-player/internal/playback"
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		Error:     err.Error(),
		Retryable: playback.IsRetryable(err),
	})
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...)})
}

func statusFor(err error) int {
	var (
		unsupported *playback.UnsupportedMediaError
		failed      *playback.ResolutionFailedError
	)
	switch {
	case errors.Is(err, download.ErrJobNotFound),
		errors.Is(err, download.ErrEntryNotFound),
		errors.Is(err, media.ErrItemNotFound),
		errors.Is(err, media.ErrNoTrickplay),
		errors.Is(err, playback.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, download.ErrJobExists),
		errors.Is(err, download.ErrJobActive),
		errors.Is(err, download.ErrInvalidTransition),
		errors.Is(err, playback.ErrSessionStopped),
		errors.Is(err, playbackapp.ErrAlreadyStarted):
		return http.StatusConflict
	case media.IsValidationError(err), errors.Is(err, media.ErrInvalidItem):
		return http.StatusBadRequest
	case errors.As(err, &unsupported):
		return http.StatusUnprocessableEntity
	case errors.As(err, &failed):
		return http.StatusBadGateway
	case errors.Is(err, download.ErrManagerStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body; an empty body leaves v untouched
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
