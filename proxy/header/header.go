// Package header provides header filtering for the bridge relay.
//
// The relay sits between a client and an upstream LLM provider like so:
//
//	Client <--> Relay <--> Upstream LLM Provider
//
// and each leg negotiates auth, compression, hops and framing independently.
package header

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kgourjau/BridgeAI/pkg/sse"
)

// Handler manages headers between relay connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest is the set of request headers (client --> relay --> upstream)
// that are not forwarded to the upstream LLM provider.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection":        {},
	"Keep-Alive":        {},
	"Proxy-Connection":  {},
	"Te":                {},
	"Trailer":           {},
	"Transfer-Encoding": {},
	"Upgrade":           {},

	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL.
	"Host": {},

	// Accept-Encoding is stripped so that Go's http.Transport adds its own
	// "Accept-Encoding: gzip" and transparently decompresses the upstream
	// response before it is reframed.
	"Accept-Encoding": {},

	// The client's bearer token authenticates against the relay only. The
	// upstream client sends its own API key.
	"Authorization":       {},
	"Proxy-Authorization": {},
	"Cookie":              {},

	// The upstream client owns the request body and its framing.
	"Content-Length": {},
	"Content-Type":   {},
	"Accept":         {},
}

// UpstreamRequestHeaders returns the client request headers that may be
// forwarded to the upstream API.
func (h *Handler) UpstreamRequestHeaders(c *fiber.Ctx) http.Header {
	out := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, skip := skipRequest[k]; !skip {
			out.Add(k, string(value))
		}
	})
	return out
}

// SetStreamResponseHeaders prepares the client response for an SSE stream.
// Intermediaries are asked not to cache or buffer the events.
func (h *Handler) SetStreamResponseHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderContentType, sse.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")
}
