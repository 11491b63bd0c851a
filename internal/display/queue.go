// Package display connects frame processors to the presentation side.
//
// Each (device, stream) pair owns one Queue with a single producer (the
// processor job) and a single consumer (the dispatch tick). A full queue
// drops the newest frame so the producer never blocks.
package display

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smazurov/depthrig/internal/frame"
)

// DefaultCapacity bounds display latency to a few frames while absorbing
// jitter on the presentation side.
const DefaultCapacity = 3

// ErrUnknownStream is returned when parsing an unrecognised stream name.
var ErrUnknownStream = errors.New("unknown stream")

// Stream identifies one of the two display streams of a device.
type Stream int

const (
	// StreamColor is the decoded color image.
	StreamColor Stream = iota
	// StreamIR is the normalized IR image.
	StreamIR
)

func (s Stream) String() string {
	switch s {
	case StreamColor:
		return "color"
	case StreamIR:
		return "ir"
	default:
		return fmt.Sprintf("Stream(%d)", int(s))
	}
}

// ParseStream converts "color" or "ir" to a Stream.
func ParseStream(name string) (Stream, error) {
	switch strings.ToLower(name) {
	case "color":
		return StreamColor, nil
	case "ir":
		return StreamIR, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStream, name)
	}
}

// Queue is a fixed-capacity FIFO of frame buffers.
type Queue struct {
	items chan *frame.Buffer
}

// NewQueue creates a queue. Capacities below one fall back to DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue{items: make(chan *frame.Buffer, capacity)}
}

// TryPush appends b unless the queue is full. It reports whether b was
// accepted; a rejected buffer is dropped and the queued items are untouched.
func (q *Queue) TryPush(b *frame.Buffer) bool {
	select {
	case q.items <- b:
		return true
	default:
		return false
	}
}

// TryPop removes the oldest buffer if there is one.
func (q *Queue) TryPop() (*frame.Buffer, bool) {
	select {
	case b := <-q.items:
		return b, true
	default:
		return nil, false
	}
}

// Len returns the number of queued buffers.
func (q *Queue) Len() int { return len(q.items) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.items) }

// Pair holds the color and IR queues of one device.
type Pair struct {
	Color *Queue
	IR    *Queue
}

// NewPair creates both queues with the same capacity.
func NewPair(capacity int) Pair {
	return Pair{Color: NewQueue(capacity), IR: NewQueue(capacity)}
}

// Queue returns the queue for s.
func (p Pair) Queue(s Stream) *Queue {
	if s == StreamIR {
		return p.IR
	}
	return p.Color
}
