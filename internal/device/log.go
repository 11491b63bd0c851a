package device

import (
	"log/slog"
	"time"
)

// LogMessage is a diagnostic line emitted by a device backend.
type LogMessage struct {
	Time    time.Time
	Level   slog.Level
	Serial  string
	Message string
}

// LogChannel carries backend diagnostics to the dispatch loop. Posting never
// blocks; messages beyond capacity are dropped.
type LogChannel struct {
	ch chan LogMessage
}

// NewLogChannel creates a channel buffering up to capacity messages.
func NewLogChannel(capacity int) *LogChannel {
	if capacity < 1 {
		capacity = 64
	}
	return &LogChannel{ch: make(chan LogMessage, capacity)}
}

// Post queues msg and reports whether it was accepted.
func (l *LogChannel) Post(msg LogMessage) bool {
	if l == nil {
		return false
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	select {
	case l.ch <- msg:
		return true
	default:
		return false
	}
}

// Drain passes every queued message to fn and returns how many there were.
func (l *LogChannel) Drain(fn func(LogMessage)) int {
	if l == nil {
		return 0
	}
	n := 0
	for {
		select {
		case msg := <-l.ch:
			fn(msg)
			n++
		default:
			return n
		}
	}
}
