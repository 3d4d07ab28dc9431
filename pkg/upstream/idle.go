package upstream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// idleReader cancels the upstream request when a single Read waits longer
// than timeout for bytes. The watchdog only runs inside Read, so time spent
// by the caller between reads is not counted. A read interrupted that way
// fails with ErrIdleTimeout.
type idleReader struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	span    trace.Span
	expired atomic.Bool
	closed  sync.Once
	bytes   int64
}

func newIdleReader(rc io.ReadCloser, timeout time.Duration, cancel context.CancelFunc, span trace.Span) *idleReader {
	r := &idleReader{
		rc:      rc,
		timeout: timeout,
		cancel:  cancel,
		span:    span,
	}
	r.timer = time.AfterFunc(timeout, func() {
		r.expired.Store(true)
		r.cancel()
	})
	r.timer.Stop()
	return r
}

func (r *idleReader) Read(p []byte) (int, error) {
	if r.expired.Load() {
		return 0, ErrIdleTimeout
	}

	r.timer.Reset(r.timeout)
	n, err := r.rc.Read(p)
	r.timer.Stop()

	r.bytes += int64(n)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err
	}
	if r.expired.Load() {
		return n, ErrIdleTimeout
	}
	return n, err
}

// Close stops the watchdog, cancels the request and releases the body.
func (r *idleReader) Close() error {
	var err error
	r.closed.Do(func() {
		r.timer.Stop()
		r.cancel()
		err = r.rc.Close()

		r.span.SetAttributes(attribute.Int64("upstream.bytes_read", r.bytes))
		if r.expired.Load() {
			endSpan(r.span, ErrIdleTimeout)
			return
		}
		r.span.End()
	})
	return err
}
