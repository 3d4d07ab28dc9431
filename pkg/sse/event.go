// Package sse provides the incremental SSE reframing pipeline used by the
// bridge relay. It consumes an upstream "data: <json>\n\n" stream in chunks of
// any size, re-derives the logical event boundaries, rewrites every JSON
// payload and re-emits well-formed events to a downstream writer while the
// upstream connection is still open.
//
// Only the subset of SSE spoken by OpenAI-compatible chat-completion
// endpoints is understood: single "data: " lines terminated by a blank line,
// with "[DONE]" as the end-of-stream sentinel.
//
// See the HTML living standard:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "encoding/json"

const (
	// DataPrefix is the fixed field prefix every upstream event line carries.
	DataPrefix = "data: "

	// Delimiter terminates a single event.
	Delimiter = "\n\n"

	// Sentinel is the field value marking the normal end of a stream.
	Sentinel = "[DONE]"

	// ContentType is the media type of the downstream response.
	ContentType = "text/event-stream"
)

// Event is a single logical SSE event carved out of the upstream byte stream.
type Event struct {
	// Data is the field line between the "data: " prefix and the delimiter.
	// It is a copy and remains valid after the reframer buffer moves on.
	Data []byte

	// Sentinel is true when Data is exactly the "[DONE]" terminator.
	Sentinel bool
}

// Format wraps payload as an outgoing event: "data: <payload>\n\n".
func Format(payload []byte) []byte {
	out := make([]byte, 0, len(DataPrefix)+len(payload)+len(Delimiter))
	out = append(out, DataPrefix...)
	out = append(out, payload...)
	out = append(out, Delimiter...)
	return out
}

// DoneEvent returns the outgoing sentinel event, "data: [DONE]\n\n".
func DoneEvent() []byte {
	return Format([]byte(Sentinel))
}

// errorPayload is the body of the terminal in-band error event.
type errorPayload struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorEvent renders the terminal error event sent downstream when a stream
// fails after the response headers have been committed.
func ErrorEvent(message, errType string) []byte {
	payload, err := json.Marshal(errorPayload{Error: errorBody{Message: message, Type: errType}})
	if err != nil {
		payload = []byte(`{"error":{"message":"An error occurred during the stream.","type":"stream_error"}}`)
	}
	return Format(payload)
}
