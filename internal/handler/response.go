package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	imgpkg "bgfill/internal/image"
	"bgfill/internal/removal"
	"bgfill/internal/security"
	"bgfill/pkg/metrics"
)

type processedResponse struct {
	ProcessedImageURL string `json:"processedImageUrl"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// stage tags a pipeline error with the step that failed, for metrics.
// Error() is the wrapped message unchanged.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func atStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

// errorKind classifies err for the error counter.
func errorKind(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	var re *removal.RemoteError
	switch {
	case errors.As(err, &re), errors.Is(err, removal.ErrUnavailable), errors.Is(err, removal.ErrResponseTooLarge):
		return "removal"
	case errors.Is(err, imgpkg.ErrUnsupportedFormat):
		return "decode"
	case errors.Is(err, security.ErrInvalidName), errors.Is(err, security.ErrEmptyName):
		return "asset"
	}
	return "internal"
}

func recordFailure(err error) {
	metrics.Get().IncError(errorKind(err))
}
