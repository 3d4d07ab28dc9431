package sse

import (
	"bytes"
	"fmt"
)

// State is the position of a Reframer in its event extraction cycle.
type State int

const (
	// StateAccumulating means the buffer holds no complete event and the
	// reframer needs more upstream bytes.
	StateAccumulating State = iota

	// StateEventReady means at least one delimiter is buffered and Next will
	// yield or reject an event without further input.
	StateEventReady

	// StateTerminated means the sentinel was seen or the upstream ended.
	// All further input is ignored.
	StateTerminated

	// StateFailed means a malformed event was found. All further input is
	// ignored.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateEventReady:
		return "event_ready"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultMaxEventSize bounds how many bytes a single event may span before
// the reframer gives up on finding its delimiter.
const DefaultMaxEventSize = 1 << 20

// maxReportedLine caps the raw bytes kept in a *MalformedChunkError.
const maxReportedLine = 512

var (
	delimiter  = []byte(Delimiter)
	dataPrefix = []byte(DataPrefix)
	bareData   = []byte("data:")
	sentinel   = []byte(Sentinel)
	newline    = []byte("\n")
)

// Reframer re-derives SSE event boundaries from a byte stream whose read
// boundaries carry no meaning. Feed it bytes as they arrive and call Next
// until it reports that more input is needed.
//
//	r := sse.NewReframer()
//	r.Feed(chunk)
//	for {
//		ev, ok, err := r.Next()
//		...
//	}
//
// A Reframer belongs to a single stream and is not safe for concurrent use.
type Reframer struct {
	// buf holds the received bytes not yet assigned to a completed event.
	buf []byte

	// scanned is how far buf is known to be free of a delimiter.
	scanned int

	// next is the offset of the first buffered delimiter in StateEventReady.
	next int

	// limit is the largest event, delimiter excluded, that Next accepts.
	limit int

	state State
}

// NewReframer returns an empty Reframer in StateAccumulating that accepts
// events up to DefaultMaxEventSize.
func NewReframer() *Reframer {
	return &Reframer{limit: DefaultMaxEventSize}
}

// SetMaxEventSize changes the event size limit. n <= 0 removes it.
func (r *Reframer) SetMaxEventSize(n int) {
	r.limit = max(n, 0)
}

// State reports the current state.
func (r *Reframer) State() State {
	return r.state
}

// Buffered reports how many bytes are waiting for a delimiter.
func (r *Reframer) Buffered() int {
	return len(r.buf)
}

// Feed appends p to the buffer. p is copied. Input after termination or
// failure is dropped.
func (r *Reframer) Feed(p []byte) {
	if r.stopped() || len(p) == 0 {
		return
	}

	r.buf = append(r.buf, p...)
	if r.state == StateAccumulating {
		r.scan()
	}
}

// Next is the transition function. It returns the next complete event, or
// ok == false when the buffer yields no further event (more input needed,
// or the reframer has stopped).
//
// Empty events and events made only of SSE comment lines are keep-alives
// and are skipped. Comment lines inside an event carrying data are removed
// before the data line is read. The sentinel event is returned with
// Sentinel set and moves the reframer to StateTerminated, discarding anything
// buffered behind it. A line that does not start with the "data: " prefix
// yields a *MalformedChunkError and moves the reframer to StateFailed. So
// does an event larger than the size limit, whether or not its delimiter
// has arrived yet.
func (r *Reframer) Next() (Event, bool, error) {
	for r.state == StateEventReady {
		if err := r.checkSize(r.next); err != nil {
			return Event{}, false, err
		}

		field, err := fieldLine(stripComments(r.buf[:r.next]))
		if err != nil {
			r.Fail()
			return Event{}, false, err
		}

		if bytes.Equal(field, sentinel) {
			r.stop(StateTerminated)
			return Event{Data: []byte(Sentinel), Sentinel: true}, true, nil
		}

		var ev Event
		if len(field) > 0 {
			ev.Data = bytes.Clone(field)
		}
		r.consume(r.next + len(delimiter))

		if ev.Data != nil {
			return ev, true, nil
		}
	}

	if r.state == StateAccumulating {
		if err := r.checkSize(len(r.buf)); err != nil {
			return Event{}, false, err
		}
	}

	return Event{}, false, nil
}

// checkSize fails the reframer when an event of n bytes exceeds the limit.
func (r *Reframer) checkSize(n int) error {
	if r.limit == 0 || n <= r.limit {
		return nil
	}

	err := &MalformedChunkError{
		Line:   bytes.Clone(r.buf[:min(len(r.buf), maxReportedLine)]),
		Reason: fmt.Sprintf("event exceeds %d bytes", r.limit),
	}
	r.Fail()
	return err
}

// Finish signals that the upstream ended. Any incomplete trailing fragment
// is dropped and its length returned. Complete events still buffered are
// dropped as well, so callers drain Next first.
func (r *Reframer) Finish() int {
	if r.stopped() {
		return 0
	}

	dropped := len(r.buf)
	r.stop(StateTerminated)
	return dropped
}

// Fail moves the reframer to StateFailed and releases the buffer.
func (r *Reframer) Fail() {
	r.stop(StateFailed)
}

func (r *Reframer) stopped() bool {
	return r.state == StateTerminated || r.state == StateFailed
}

func (r *Reframer) stop(s State) {
	r.state = s
	r.buf = nil
	r.scanned = 0
	r.next = 0
}

// consume drops buf[:n] and rescans the remainder.
func (r *Reframer) consume(n int) {
	remaining := copy(r.buf, r.buf[n:])
	r.buf = r.buf[:remaining]
	r.scanned = 0
	r.scan()
}

// scan looks for the next delimiter past the region already known to be
// free of one. The search restarts one byte early because a delimiter can
// straddle two reads.
func (r *Reframer) scan() {
	from := max(r.scanned-1, 0)
	if i := bytes.Index(r.buf[from:], delimiter); i >= 0 {
		r.next = from + i
		r.state = StateEventReady
		return
	}

	r.scanned = len(r.buf)
	r.state = StateAccumulating
}

// stripComments drops the lines of event that start with ':'. An event made
// only of comments comes back empty.
func stripComments(event []byte) []byte {
	if len(event) == 0 || (event[0] != ':' && !bytes.Contains(event, []byte("\n:"))) {
		return event
	}

	kept := make([][]byte, 0, 2)
	for line := range bytes.SplitSeq(event, newline) {
		if len(line) > 0 && line[0] == ':' {
			continue
		}
		kept = append(kept, line)
	}
	return bytes.Join(kept, newline)
}

// fieldLine strips the "data: " prefix from a raw event line.
func fieldLine(line []byte) ([]byte, error) {
	switch {
	case len(line) == 0:
		return nil, nil
	case bytes.HasPrefix(line, dataPrefix):
		return line[len(dataPrefix):], nil
	case bytes.Equal(line, bareData):
		return nil, nil
	default:
		return nil, &MalformedChunkError{
			Line:   bytes.Clone(line),
			Reason: `event line does not start with "data: "`,
		}
	}
}
