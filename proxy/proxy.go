// Package proxy provides the streaming relay that impersonates the OpenAI chat
// completions API in front of an OpenAI-compatible upstream.
package proxy

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kgourjau/BridgeAI/pkg/chunk"
	"github.com/kgourjau/BridgeAI/pkg/metrics"
	"github.com/kgourjau/BridgeAI/pkg/storage"
	"github.com/kgourjau/BridgeAI/pkg/upstream"
	"github.com/kgourjau/BridgeAI/proxy/header"
	"github.com/kgourjau/BridgeAI/proxy/worker"
)

// Relay routes.
const (
	RouteChatCompletions = "/openai/v1/chat/completions"
	RouteModels          = "/openai/v1/models"
	RouteChatMessage     = "/chat/message"
	RouteChatLogs        = "/api/chat-logs"
	RoutePing            = "/ping"
	RouteMetrics         = "/metrics"
)

// Proxy is the relay server. It forwards chat requests to the upstream,
// rewrites the streamed response on the fly and enqueues every exchange for
// async transcript storage via its worker pool.
type Proxy struct {
	config        Config
	upstream      *upstream.Client
	driver        storage.Driver
	workerPool    *worker.Pool
	logger        *zap.Logger
	server        *fiber.App
	headerHandler *header.Handler
	metrics       *metrics.Collector
	models        *ristretto.Cache[string, []byte]

	// settings holds the current *snapshot; swapped whole on reload.
	settings atomic.Pointer[snapshot]

	// streams tracks relay goroutines still writing a response.
	streams sync.WaitGroup
}

// snapshot is an immutable copy of Settings with the derived chunk policy.
type snapshot struct {
	Settings
	policy *chunk.Policy
}

func newSnapshot(s Settings) *snapshot {
	s.StripFields = append([]string(nil), s.StripFields...)
	return &snapshot{
		Settings: s,
		policy:   &chunk.Policy{Model: s.AdvertisedModel, Strip: s.StripFields},
	}
}

// New creates a new Proxy.
// The driver is injected to handle async persistence of the transcript.
func New(config Config, client *upstream.Client, driver storage.Driver, logger *zap.Logger) (*Proxy, error) {
	if client == nil {
		return nil, errors.New("upstream client is required")
	}
	if config.Settings.AdvertisedModel == "" {
		return nil, errors.New("advertised model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ModelsCacheTTL <= 0 {
		config.ModelsCacheTTL = defaultModelsCacheTTL
	}

	models, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e3,
		MaxCost:     8 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create models cache: %w", err)
	}

	wp, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: config.Publisher,
		Upstream:  config.UpstreamURL,
		Metrics:   config.Metrics,
		Logger:    logger,
	})
	if err != nil {
		models.Close()
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	p := &Proxy{
		config:        config,
		upstream:      client,
		driver:        driver,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		metrics:       config.Metrics,
		models:        models,
	}
	p.settings.Store(newSnapshot(config.Settings))

	// No compress middleware: it would buffer the event stream.
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(p.observe)

	app.Get(RoutePing, p.handlePing)
	if p.metrics != nil {
		app.Get(RouteMetrics, adaptor.HTTPHandler(p.metrics.Handler()))
	}

	gate := p.bearerGate()
	app.Post(RouteChatCompletions, gate, p.handleChatCompletions)
	app.Get(RouteChatCompletions, gate, p.handleChatCompletions)
	app.Post(RouteChatMessage, gate, p.handleChatMessage)
	app.Get(RouteModels, gate, p.handleModels)
	app.Get(RouteChatLogs, gate, p.handleChatLogs)

	return p, nil
}

// UpdateSettings swaps the request settings. Requests already in flight keep
// the settings they started with.
func (p *Proxy) UpdateSettings(s Settings) error {
	if s.AdvertisedModel == "" {
		return errors.New("advertised model is required")
	}
	p.settings.Store(newSnapshot(s))
	p.logger.Info("relay settings updated",
		zap.String("advertised_model", s.AdvertisedModel),
		zap.Strings("strip_fields", s.StripFields),
		zap.Bool("passthrough_model", s.PassthroughModel),
	)
	return nil
}

// Handler exposes the fiber app, mainly for tests.
func (p *Proxy) Handler() *fiber.App {
	return p.server
}

// Run starts the relay server on the configured listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting relay server",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting relay server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", p.config.UpstreamURL),
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the server, waits for the streams in flight to
// hand their exchange to the worker pool, then waits for the pool to drain.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.streams.Wait()
	p.workerPool.Close()
	p.models.Close()
	return err
}

// observe records request metrics and logs every request.
func (p *Proxy) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	route := c.Route().Path
	p.metrics.RecordRequest(route, status, time.Since(start))
	p.requestLogger(c).Debug("request handled",
		zap.String("method", c.Method()),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)),
	)
	return err
}

// requestLogger returns a logger carrying the request ID.
func (p *Proxy) requestLogger(c *fiber.Ctx) *zap.Logger {
	return p.logger.With(zap.String("request_id", requestID(c)))
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}

func (p *Proxy) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
