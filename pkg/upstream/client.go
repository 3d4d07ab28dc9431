// Package upstream is the HTTP client for the OpenAI-compatible completions
// API the relay forwards to.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kgourjau/BridgeAI/pkg/utils"
)

const (
	tracerName = "github.com/kgourjau/BridgeAI/pkg/upstream"

	// DefaultIdleTimeout bounds the silence between two stream reads.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultHeaderTimeout bounds the wait for upstream response headers.
	DefaultHeaderTimeout = 30 * time.Second

	// completeTimeout bounds a whole non-streamed request. LLM requests can
	// be slow, especially with long outputs.
	completeTimeout = 5 * time.Minute

	// maxErrorBody caps how much of an upstream error body is kept.
	maxErrorBody = 64 * 1024
)

// ErrInvalidPayload is returned for a request body that is not a JSON object.
var ErrInvalidPayload = errors.New("request payload is not a JSON object")

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.groq.com/openai/v1".
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// DefaultModel is substituted when the payload names no model.
	DefaultModel string

	// IdleTimeout aborts a stream after this long without bytes.
	IdleTimeout time.Duration

	// HeaderTimeout bounds the wait for response headers.
	HeaderTimeout time.Duration

	// HTTPClient overrides the client built from HeaderTimeout.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client talks to the upstream completions API. It holds no per-request
// state and is safe for concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	defaultModel string
	idleTimeout  time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
	tracer       trace.Tracer
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("upstream base URL is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		headerTimeout := cfg.HeaderTimeout
		if headerTimeout <= 0 {
			headerTimeout = DefaultHeaderTimeout
		}

		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = headerTimeout

		// No overall Timeout: streams stay open as long as bytes keep
		// arriving, the idle watchdog handles stalls.
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		idleTimeout:  idle,
		httpClient:   httpClient,
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
	}, nil
}

// StreamChat opens a streaming chat completion. payload is the caller's
// request body; "stream" is forced to true and the default model is set when
// none is given. A non-2xx status yields *UpstreamRequestError. The returned
// body must be closed; closing it cancels the upstream request.
func (c *Client) StreamChat(ctx context.Context, payload []byte) (io.ReadCloser, error) {
	body, model, err := c.prepare(payload, true)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ctx, span := c.tracer.Start(ctx, "upstream.stream_chat", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("llm.model", model))

	resp, err := c.do(ctx, http.MethodPost, "/chat/completions", body, "text/event-stream")
	if err != nil {
		endSpan(span, err)
		cancel()
		return nil, err
	}

	c.logger.Debug("upstream stream opened",
		zap.String("model", model),
		zap.String("content_type", resp.Header.Get("Content-Type")),
	)

	return newIdleReader(resp.Body, c.idleTimeout, cancel, span), nil
}

// Complete sends a non-streamed chat completion and returns the raw
// response body.
func (c *Client) Complete(ctx context.Context, payload []byte) ([]byte, error) {
	body, model, err := c.prepare(payload, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, completeTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "upstream.complete", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("llm.model", model))

	resp, err := c.do(ctx, http.MethodPost, "/chat/completions", body, "application/json")
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("reading upstream response: %w", err)
	}
	endSpan(span, err)
	return out, err
}

// ListModels returns the raw upstream model list.
func (c *Client) ListModels(ctx context.Context) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "upstream.list_models", trace.WithSpanKind(trace.SpanKindClient))

	resp, err := c.do(ctx, http.MethodGet, "/models", nil, "application/json")
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("reading upstream models: %w", err)
	}
	endSpan(span, err)
	return out, err
}

// prepare normalizes the outgoing request body.
func (c *Client) prepare(payload []byte, stream bool) ([]byte, string, error) {
	if !gjson.ValidBytes(payload) || !gjson.ParseBytes(payload).IsObject() {
		return nil, "", ErrInvalidPayload
	}

	body, err := sjson.SetBytes(payload, "stream", stream)
	if err != nil {
		return nil, "", fmt.Errorf("setting stream flag: %w", err)
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" && c.defaultModel != "" {
		model = c.defaultModel
		body, err = sjson.SetBytes(body, "model", model)
		if err != nil {
			return nil, "", fmt.Errorf("setting default model: %w", err)
		}
	}

	return body, model, nil
}

// do sends one request and validates the status. On success the caller owns
// resp.Body.
func (c *Client) do(ctx context.Context, method, path string, body []byte, accept string) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	for k, v := range headersFrom(ctx) {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", utils.UserAgent())
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.Debug("forwarding request to upstream",
		zap.String("method", method),
		zap.String("url", req.URL.String()),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("upstream returned error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", errBody),
		)
		return nil, &UpstreamRequestError{StatusCode: resp.StatusCode, Body: errBody}
	}

	return resp, nil
}

type headersKey struct{}

// WithHeaders returns a context whose upstream requests carry h. Headers the
// client manages itself (auth, content negotiation) take precedence.
func WithHeaders(ctx context.Context, h http.Header) context.Context {
	if len(h) == 0 {
		return ctx
	}
	return context.WithValue(ctx, headersKey{}, h.Clone())
}

func headersFrom(ctx context.Context) http.Header {
	h, _ := ctx.Value(headersKey{}).(http.Header)
	return h
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var reqErr *UpstreamRequestError
		if errors.As(err, &reqErr) {
			span.SetAttributes(attribute.Int("http.response.status_code", reqErr.StatusCode))
		}
	}
	span.End()
}
