package llm

// StreamChunk is the parsed form of one chat.completion.chunk event.
type StreamChunk struct {
	// ID shared by all chunks of one completion
	ID string `json:"id,omitempty"`

	// Model reported by the chunk
	Model string `json:"model"`

	// Content is the delta text of the first choice.
	Content string `json:"content,omitempty"`

	// Stop reason (only present on the final chunk)
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage metrics (only present on the final chunk when requested)
	Usage *Usage `json:"usage,omitempty"`
}
