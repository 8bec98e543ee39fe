package models

import (
	"errors"
	"fmt"
)

// Caller-input errors. These are detected before any backend call and map
// to HTTP 400 at the edge.
var (
	ErrEmptyAudio           = errors.New("audio file is empty")
	ErrUnsupportedMediaType = errors.New("unsupported audio media type")
	ErrUnsupportedModel     = errors.New("unsupported model")
	ErrStreamingUnsupported = errors.New("streaming is not supported for this model")
)

// ErrMalformedResponse flags a backend payload that cannot be interpreted.
var ErrMalformedResponse = errors.New("malformed backend response")

// ErrUnknownTaskStatus flags a task status value outside the documented set.
var ErrUnknownTaskStatus = errors.New("unknown task status")

// UpstreamError preserves a backend's non-success HTTP status and body
// verbatim so the edge can pass them through.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// TaskError is a terminal FAILED state reported by the async task backend.
type TaskError struct {
	Code    string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("transcription task failed, code %s: %s", e.Code, e.Message)
}
