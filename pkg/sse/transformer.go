package sse

import (
	"errors"
	"io"
	"iter"
)

const defaultReadSize = 4 * 1024

// errStopped is returned to run when an Events consumer breaks early.
var errStopped = errors.New("consumer stopped")

// Rewriter mutates the JSON payload of a single non-sentinel event.
type Rewriter interface {
	Rewrite(data []byte) ([]byte, error)
}

// RewriterFunc adapts a function to a Rewriter.
type RewriterFunc func(data []byte) ([]byte, error)

// Rewrite calls f(data).
func (f RewriterFunc) Rewrite(data []byte) ([]byte, error) {
	return f(data)
}

// Outcome describes how a stream ended.
type Outcome int

const (
	// OutcomeSentinel means the upstream sent "[DONE]".
	OutcomeSentinel Outcome = iota + 1

	// OutcomeEOF means the upstream closed without a sentinel.
	OutcomeEOF

	// OutcomeFailed means a malformed event or an upstream read error.
	OutcomeFailed

	// OutcomeAborted means the downstream stopped accepting events.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSentinel:
		return "sentinel"
	case OutcomeEOF:
		return "eof"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Result summarizes one transformed stream.
type Result struct {
	Outcome Outcome

	// Events is the number of outgoing events produced, sentinel included.
	Events int

	// Discarded is the size of the incomplete trailing fragment dropped when
	// the upstream ended mid-event.
	Discarded int

	// Err is the failure behind OutcomeFailed or OutcomeAborted, if any.
	Err error
}

// Hooks are observability callbacks. All fields are optional.
type Hooks struct {
	// OnEvent receives the payload of every outgoing event (the rewritten
	// JSON or the sentinel) before it is handed downstream.
	OnEvent func(payload []byte)

	// OnDone is called once when the stream ends, whatever the outcome.
	OnDone func(Result)
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithReadSize sets the size of each upstream read.
func WithReadSize(n int) Option {
	return func(t *Transformer) {
		if n > 0 {
			t.readSize = n
		}
	}
}

// WithMaxEventSize bounds the size of a single upstream event. Larger events
// fail the stream with a *MalformedChunkError. n <= 0 keeps
// DefaultMaxEventSize.
func WithMaxEventSize(n int) Option {
	return func(t *Transformer) {
		if n > 0 {
			t.reframer.SetMaxEventSize(n)
		}
	}
}

// WithHooks installs observability hooks.
func WithHooks(h Hooks) Option {
	return func(t *Transformer) {
		t.hooks = h
	}
}

// Transformer turns an upstream SSE byte source into rewritten outgoing
// events. Bytes are pulled from the source only when no complete event is
// buffered, so a slow consumer holds back the upstream instead of growing a
// queue. A Transformer is single use.
type Transformer struct {
	src      io.Reader
	rewriter Rewriter
	reframer *Reframer
	hooks    Hooks
	readSize int
	result   Result
}

// NewTransformer returns a Transformer reading from src. A nil rewriter
// passes payloads through unchanged.
func NewTransformer(src io.Reader, rewriter Rewriter, opts ...Option) *Transformer {
	t := &Transformer{
		src:      src,
		rewriter: rewriter,
		reframer: NewReframer(),
		readSize: defaultReadSize,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// State reports the state of the underlying reframer.
func (t *Transformer) State() State {
	return t.reframer.State()
}

// Events returns the lazy sequence of outgoing event bytes. The sequence
// ends after the sentinel event, on upstream EOF, or with a single non-nil
// error (*MalformedChunkError or *StreamError).
func (t *Transformer) Events() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		err := t.run(func(out []byte) error {
			if !yield(out, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(nil, err)
		}
	}
}

// Pipe writes every outgoing event to w as soon as it is ready, flushing
// after each one when w supports it. A rejected write ends the stream with a
// *DownstreamWriteError and nothing more is written. Any other failure is
// reported downstream as one terminal error event before Pipe returns it.
func (t *Transformer) Pipe(w io.Writer) (Result, error) {
	err := t.run(func(out []byte) error {
		if _, err := w.Write(out); err != nil {
			return &DownstreamWriteError{Err: err}
		}
		if err := flush(w); err != nil {
			return &DownstreamWriteError{Err: err}
		}
		return nil
	})
	if err == nil {
		return t.result, nil
	}

	var downstream *DownstreamWriteError
	if !errors.As(err, &downstream) {
		if _, werr := w.Write(ErrorEvent(streamErrorMessage, errorType(err))); werr == nil {
			_ = flush(w)
		}
	}

	return t.result, err
}

// run drives the read, reframe, rewrite, emit loop until the stream ends.
func (t *Transformer) run(emit func([]byte) error) error {
	t.result = Result{}
	defer func() {
		if t.hooks.OnDone != nil {
			t.hooks.OnDone(t.result)
		}
	}()

	buf := make([]byte, t.readSize)
	var readErr error

	for {
		for {
			ev, ok, err := t.reframer.Next()
			if err != nil {
				return t.fail(err)
			}
			if !ok {
				break
			}

			out, err := t.render(ev)
			if err != nil {
				t.reframer.Fail()
				return t.fail(err)
			}

			t.result.Events++
			if err := emit(out); err != nil {
				t.reframer.Fail()
				t.result.Outcome = OutcomeAborted
				if !errors.Is(err, errStopped) {
					t.result.Err = err
				}
				return err
			}

			if ev.Sentinel {
				t.result.Outcome = OutcomeSentinel
				return nil
			}
		}

		if readErr != nil {
			t.result.Discarded = t.reframer.Finish()
			if errors.Is(readErr, io.EOF) {
				t.result.Outcome = OutcomeEOF
				return nil
			}
			return t.fail(&StreamError{Err: readErr})
		}

		n, err := t.src.Read(buf)
		if n > 0 {
			t.reframer.Feed(buf[:n])
		}
		readErr = err
	}
}

// render produces the outgoing bytes for one event.
func (t *Transformer) render(ev Event) ([]byte, error) {
	payload := ev.Data
	if !ev.Sentinel && t.rewriter != nil {
		rewritten, err := t.rewriter.Rewrite(ev.Data)
		if err != nil {
			return nil, &MalformedChunkError{
				Line:   ev.Data,
				Reason: "payload is not a JSON object",
				Err:    err,
			}
		}
		payload = rewritten
	}

	if t.hooks.OnEvent != nil {
		t.hooks.OnEvent(payload)
	}

	return Format(payload), nil
}

func (t *Transformer) fail(err error) error {
	t.result.Outcome = OutcomeFailed
	t.result.Err = err
	return err
}

// flush pushes buffered bytes through writers that buffer, such as
// *bufio.Writer or http.ResponseWriter.
func flush(w io.Writer) error {
	switch f := w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}
