// Package worker provides an asynchronous worker pool that records relayed
// exchanges in the chat transcript using the provided storage.Driver and
// announces them on the provided eventstream.Publisher.
//
// The pool decouples storage operations from the relay's HTTP hot path so that
// the client-relay-upstream interaction is never slowed by the transcript.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/kgourjau/BridgeAI/pkg/eventstream"
	"github.com/kgourjau/BridgeAI/pkg/llm"
	"github.com/kgourjau/BridgeAI/pkg/metrics"
	"github.com/kgourjau/BridgeAI/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Exchange *llm.Exchange

	// Prompt is the user line written to the transcript. When empty the raw
	// request JSON is used.
	Prompt string

	// Answer is the assistant line written to the transcript. When empty the
	// exchange reply is used.
	Answer string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for transcript entries.
	Driver storage.Driver

	// Publisher announces stored exchanges. Optional.
	Publisher eventstream.Publisher

	// Upstream is the upstream base URL, used to label assistant entries.
	Upstream string

	// Metrics is the optional metrics collector.
	Metrics *metrics.Collector

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes transcript jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	// mu guards closed and the queue send against Close.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// AssistantSource is the transcript source label for replies from upstream.
func AssistantSource(upstream string) string {
	return fmt.Sprintf("AI (%s)", upstream)
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	if job.Exchange == nil {
		p.logger.Error("job not queued, nil exchange")
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped",
			zap.String("request_id", job.Exchange.RequestID),
			zap.String("route", job.Exchange.Route),
		)
		p.config.Metrics.RecordTranscriptJob("dropped")
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("request_id", job.Exchange.RequestID),
			zap.String("route", job.Exchange.Route),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("request_id", job.Exchange.RequestID),
			zap.String("route", job.Exchange.Route),
		)
		p.config.Metrics.RecordTranscriptJob("dropped")
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the relay HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("transcript worker stopped", zap.Uint("worker_id", id))
}

// processJob stores the exchange and publishes its event.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()
	ex := job.Exchange

	entries := p.entries(job)
	if err := p.config.Driver.Put(ctx, entries...); err != nil {
		p.logger.Error("async transcript storage failed",
			zap.String("request_id", ex.RequestID),
			zap.Error(err),
		)
		p.config.Metrics.RecordTranscriptJob("failed")
		return
	}
	p.config.Metrics.RecordTranscriptJob("stored")

	p.logger.Info("exchange stored",
		zap.String("request_id", ex.RequestID),
		zap.String("outcome", ex.Outcome),
		zap.Int("reply_len", len(ex.Reply)),
	)

	if p.config.Publisher == nil {
		return
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}

	event := eventstream.NewExchangeCompletedEvent(ex, p.config.Upstream, ids)
	if err := p.config.Publisher.PublishExchange(ctx, event); err != nil {
		p.logger.Warn("failed to publish exchange event",
			zap.String("request_id", ex.RequestID),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

// entries builds the user and assistant transcript lines for a job, stamped
// with the exchange start and end.
func (p *Pool) entries(job Job) []*storage.Entry {
	ex := job.Exchange

	prompt := job.Prompt
	if prompt == "" && ex.Request != nil {
		prompt = string(ex.Request.RawRequest)
	}

	answer := job.Answer
	if answer == "" {
		answer = ex.Reply
	}

	user := storage.NewEntry(ex.RequestID, storage.RoleUser, storage.RoleUser, prompt)
	assistant := storage.NewEntry(ex.RequestID, storage.RoleAssistant, AssistantSource(p.config.Upstream), answer)

	if !ex.StartedAt.IsZero() {
		user.Timestamp = ex.StartedAt.UTC()
		assistant.Timestamp = ex.StartedAt.Add(ex.Duration).UTC()
	}

	return []*storage.Entry{user, assistant}
}
