package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/kgourjau/BridgeAI/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeExchangeCompleted is emitted after an exchange is written to
	// the transcript.
	EventTypeExchangeCompleted = "bridge.exchange.completed"
)

// ExchangeCompletedEvent is a transport-neutral event payload for a
// recorded exchange.
type ExchangeCompletedEvent struct {
	SchemaVersion int                 `json:"schema_version"`
	EventType     string              `json:"event_type"`
	EventID       string              `json:"event_id"`
	EmittedAt     time.Time           `json:"emitted_at"`
	Source        EventSource         `json:"source"`
	RequestMeta   ExchangeRequestMeta `json:"request_meta"`
	EntryIDs      []string            `json:"entry_ids"`
	Exchange      llm.Exchange        `json:"exchange"`
}

// EventSource identifies where the exchange was served.
type EventSource struct {
	// Upstream is the base URL of the provider that answered.
	Upstream string `json:"upstream"`

	// AdvertisedModel is the model identifier reported to the client.
	AdvertisedModel string `json:"advertised_model"`
}

// ExchangeRequestMeta captures request lifecycle metadata for the event.
type ExchangeRequestMeta struct {
	RequestID   string    `json:"request_id"`
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	Outcome     string    `json:"outcome"`
}

// NewExchangeCompletedEvent builds the event for ex. entryIDs are the
// transcript entries written for it.
func NewExchangeCompletedEvent(ex *llm.Exchange, upstream string, entryIDs []string) *ExchangeCompletedEvent {
	return &ExchangeCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeExchangeCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			Upstream:        upstream,
			AdvertisedModel: ex.Model,
		},
		RequestMeta: ExchangeRequestMeta{
			RequestID:   ex.RequestID,
			Path:        ex.Route,
			StartedAt:   ex.StartedAt,
			CompletedAt: ex.StartedAt.Add(ex.Duration),
			DurationMs:  ex.Duration.Milliseconds(),
			Streaming:   ex.Streamed,
			Outcome:     ex.Outcome,
		},
		EntryIDs: entryIDs,
		Exchange: *ex,
	}
}
