package models

// StreamEventType discriminates incremental transcription events.
type StreamEventType string

const (
	// StreamEventDelta carries one transcript fragment.
	StreamEventDelta StreamEventType = "delta"
	// StreamEventDone terminates a successful stream with the full text
	// and final usage. Exactly one is emitted, always last.
	StreamEventDone StreamEventType = "done"
	// StreamEventError aborts the stream. Deltas already emitted remain
	// valid; no Done follows.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one element of a streaming transcription.
type StreamEvent struct {
	Type  StreamEventType
	Delta string
	Text  string
	Usage Usage
	Err   error
}

// DeltaEvent builds a transcript fragment event.
func DeltaEvent(delta string) StreamEvent {
	return StreamEvent{Type: StreamEventDelta, Delta: delta}
}

// DoneEvent builds the terminal success event.
func DoneEvent(text string, usage Usage) StreamEvent {
	return StreamEvent{Type: StreamEventDone, Text: text, Usage: usage}
}

// ErrorEvent builds the terminal failure event.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Type: StreamEventError, Err: err}
}
