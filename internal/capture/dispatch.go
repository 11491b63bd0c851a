package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/events"
	"github.com/smazurov/depthrig/internal/processing"
)

// Tick polls every device of the active session once, submits a processing
// job per acquired capture and presents at most one new frame per display
// stream. A device whose previous job has not finished is not polled. It
// returns the number of jobs submitted.
func (s *Session) Tick() int {
	s.drainLogs()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		return 0
	}
	s.rate.tick()

	submitted := 0
	for _, ch := range s.channels {
		// One job per device at a time keeps each display queue single
		// producer and its frames in capture order.
		if ch.busy.Load() {
			continue
		}
		c, err := ch.handle.TryAcquire(s.opts.AcquireTimeout)
		if err != nil {
			if !errors.Is(err, device.ErrTimeout) {
				s.logger.Warn("Failed to acquire capture", "serial", ch.desc.Serial, "error", err)
			}
			continue
		}
		if c == nil {
			continue
		}
		if c.Empty() {
			c.Release()
			continue
		}

		persist := ch.gate.Take() && ch.sink != nil
		f := s.flips[ch.desc.Serial]
		job := processing.Job{
			Device:    ch.desc.Name(),
			Capture:   c,
			Config:    ch.desc.Config,
			Queues:    ch.queues,
			Sink:      ch.sink,
			Persist:   persist,
			FlipColor: f.color,
			FlipIR:    f.ir,
		}
		ch.busy.Store(true)
		if err := s.pool.Submit(func() {
			defer ch.busy.Store(false)
			s.processor.Process(job)
		}); err != nil {
			ch.busy.Store(false)
			c.Release()
			s.logger.Warn("Failed to submit capture", "serial", ch.desc.Serial, "error", err)
			continue
		}
		s.metrics.CaptureAcquired(ch.desc.Serial)
		submitted++
	}

	for _, ch := range s.channels {
		ch.color.Present(ch.queues.Color)
		ch.ir.Present(ch.queues.IR)
	}
	s.metrics.SetWorkers(s.pool.Running(), s.pool.Queued())
	return submitted
}

// Run drives the session until ctx is cancelled: it ticks while streaming
// and rescans for devices while idle. An active session is stopped on
// return.
func (s *Session) Run(ctx context.Context) error {
	if _, err := s.Rescan(); err != nil {
		s.logger.Warn("Initial device scan failed", "error", err)
	}
	lastScan := time.Now()

	for {
		select {
		case <-ctx.Done():
			if err := s.Close(); err != nil {
				s.logger.Warn("Failed to stop streaming on shutdown", "error", err)
			}
			return nil
		default:
		}

		if s.Tick() > 0 {
			continue
		}

		if !s.Streaming() && time.Since(lastScan) >= s.opts.RescanInterval {
			if _, err := s.Rescan(); err != nil {
				s.logger.Warn("Device scan failed", "error", err)
			}
			lastScan = time.Now()
		}

		select {
		case <-ctx.Done():
		case <-time.After(s.opts.IdlePause):
		}
	}
}

// drainLogs forwards queued backend diagnostics to the device logger and
// the event bus.
func (s *Session) drainLogs() {
	s.opts.Logs.Drain(func(msg device.LogMessage) {
		s.devLogger.Log(context.Background(), msg.Level, msg.Message, "serial", msg.Serial)
		s.opts.Bus.Publish(events.DeviceLogEvent{
			Serial:    msg.Serial,
			Level:     msg.Level.String(),
			Message:   msg.Message,
			Timestamp: msg.Time.Format(time.RFC3339),
		})
	})
}

// tickRate measures ticks per second over one second windows.
type tickRate struct {
	mu     sync.Mutex
	start  time.Time
	count  int
	perSec float64
}

func (r *tickRate) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := time.Now()
	if r.start.IsZero() {
		r.start = t
	}
	r.count++
	if elapsed := t.Sub(r.start); elapsed >= time.Second {
		r.perSec = float64(r.count) / elapsed.Seconds()
		r.start = t
		r.count = 0
	}
}

func (r *tickRate) value() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perSec
}

func (r *tickRate) reset() {
	r.mu.Lock()
	r.start = time.Time{}
	r.count = 0
	r.perSec = 0
	r.mu.Unlock()
}
