package proxy

import (
	"time"

	"github.com/kgourjau/BridgeAI/pkg/eventstream"
	"github.com/kgourjau/BridgeAI/pkg/metrics"
)

const (
	defaultModelsCacheTTL = 5 * time.Minute
	defaultChatLogLimit   = 200
	maxChatLogLimit       = 5000
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":7000")
	ListenAddr string

	// UpstreamURL is the upstream API base URL. It labels transcript entries
	// and events; requests go through the upstream client.
	UpstreamURL string

	// Settings are the hot-swappable request settings.
	Settings Settings

	// ModelsCacheTTL is how long the upstream model list is cached.
	ModelsCacheTTL time.Duration

	// Publisher is an optional event stream for recorded exchanges.
	// If nil, exchanges are only written to the transcript.
	Publisher eventstream.Publisher

	// Metrics is an optional metrics collector. If nil, /metrics is not served.
	Metrics *metrics.Collector

	// KeepAliveInterval is how often a streaming response carries an SSE
	// comment. A rejected comment means the client is gone and the upstream
	// request is cancelled. Zero disables keep-alives.
	KeepAliveInterval time.Duration

	// MaxEventSize bounds a single upstream event. Zero uses
	// sse.DefaultMaxEventSize.
	MaxEventSize int
}

// Settings are read once per request, so an UpdateSettings call applies to
// new requests while streams already in flight keep their values.
type Settings struct {
	// BearerToken gates the API routes. Empty means the gate is not
	// configured and every gated route answers 500.
	BearerToken string

	// AdvertisedModel replaces the model of every response.
	AdvertisedModel string

	// StripFields are removed from every streamed chunk.
	StripFields []string

	// PassthroughModel forwards the caller's model instead of letting the
	// upstream default apply.
	PassthroughModel bool
}
