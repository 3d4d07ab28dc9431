package sse

import (
	"errors"
	"fmt"
)

const (
	// ErrorTypeMalformedChunk is the "type" of the terminal error event emitted
	// when the upstream produced an event that could not be parsed.
	ErrorTypeMalformedChunk = "malformed_chunk"

	// ErrorTypeStream is the "type" of the terminal error event emitted when
	// the upstream connection failed mid-stream.
	ErrorTypeStream = "stream_error"

	// streamErrorMessage is the client-facing message of every terminal
	// error event. Details stay in the server logs.
	streamErrorMessage = "An error occurred during the stream."
)

// MalformedChunkError reports an upstream event whose field line lacks the
// "data: " prefix or whose payload is not a JSON object.
type MalformedChunkError struct {
	// Line is the offending raw event line, without the delimiter.
	Line []byte

	// Reason is a short description of what was wrong.
	Reason string

	Err error
}

func (e *MalformedChunkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed chunk: %s: %v", e.Reason, e.Err)
	}
	return "malformed chunk: " + e.Reason
}

func (e *MalformedChunkError) Unwrap() error {
	return e.Err
}

// StreamError reports a failure reading from the upstream byte source after
// streaming started, including idle timeouts.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return "upstream stream: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// DownstreamWriteError reports that the downstream sink rejected a write,
// usually because the client went away.
type DownstreamWriteError struct {
	Err error
}

func (e *DownstreamWriteError) Error() string {
	return "downstream write: " + e.Err.Error()
}

func (e *DownstreamWriteError) Unwrap() error {
	return e.Err
}

// errorType maps a pipeline failure to the "type" of its terminal event.
func errorType(err error) string {
	var malformed *MalformedChunkError
	if errors.As(err, &malformed) {
		return ErrorTypeMalformedChunk
	}
	return ErrorTypeStream
}
