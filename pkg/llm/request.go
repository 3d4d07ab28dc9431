package llm

import (
	"encoding/json"
	"errors"
)

// ErrNoMessages is returned for a chat request without messages.
var ErrNoMessages = errors.New("messages is required")

// ChatRequest is the parsed form of an inbound OpenAI chat completion
// request. The relay forwards RawRequest upstream; the parsed fields feed
// validation, logging and the transcript.
type ChatRequest struct {
	// Model requested by the caller, possibly empty
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Whether to stream the response
	Stream *bool `json:"stream,omitempty"`

	// Generation parameters
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`

	// RawRequest preserves the original request payload.
	RawRequest json.RawMessage `json:"raw_request,omitempty"`
}

// Streaming reports whether the caller asked for a streamed response.
func (r *ChatRequest) Streaming() bool {
	return r.Stream != nil && *r.Stream
}

// Validate checks the request carries at least one message.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}

// LastUserText returns the text of the last user message, if any.
func (r *ChatRequest) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].GetText()
		}
	}
	return ""
}
