package llm

import "time"

// Exchange is one completed request/reply pair as seen by the relay. It is
// what the transcript and the event stream record.
type Exchange struct {
	// RequestID is the relay's request identifier.
	RequestID string `json:"request_id"`

	// Route is the relay route that served the exchange.
	Route string `json:"route"`

	// Model is the identifier advertised downstream.
	Model string `json:"model"`

	// UpstreamModel is the model the upstream reported, if any.
	UpstreamModel string `json:"upstream_model,omitempty"`

	Request *ChatRequest `json:"request"`

	// Reply is the assistant text, accumulated across chunks when streamed.
	Reply string `json:"reply"`

	Usage *Usage `json:"usage,omitempty"`

	Streamed bool `json:"streamed"`

	// Outcome is how the exchange ended ("sentinel", "eof", "failed",
	// "aborted" or "complete").
	Outcome string `json:"outcome"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
