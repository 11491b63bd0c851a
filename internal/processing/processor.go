// Package processing turns raw captures into display buffers and forwards
// them to recording sinks. A Processor runs on the worker pool.
package processing

import (
	"errors"
	"log/slog"

	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/display"
	"github.com/smazurov/depthrig/internal/recording"
)

// Job is everything one capture needs to be processed.
type Job struct {
	// Device is the display name used in log lines.
	Device  string
	Capture *device.Capture
	Config  device.Config
	Queues  display.Pair
	// Sink receives the raw capture when Persist is set. May be nil.
	Sink      recording.Sink
	Persist   bool
	FlipColor bool
	FlipIR    bool
}

// Observer is notified of processing outcomes.
type Observer interface {
	FrameQueued(serial string, stream display.Stream)
	FrameDropped(serial string, stream display.Stream)
	DecodeFailed(serial string)
	CaptureSaved(serial string)
	SaveFailed(serial string)
}

type nopObserver struct{}

func (nopObserver) FrameQueued(string, display.Stream)  {}
func (nopObserver) FrameDropped(string, display.Stream) {}
func (nopObserver) DecodeFailed(string)                 {}
func (nopObserver) CaptureSaved(string)                 {}
func (nopObserver) SaveFailed(string)                   {}

// Processor executes Jobs. It holds no per-job state and may run any
// number of jobs concurrently.
type Processor struct {
	logger   *slog.Logger
	observer Observer
}

// NewProcessor creates a processor. A nil observer is allowed.
func NewProcessor(logger *slog.Logger, observer Observer) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Processor{logger: logger, observer: observer}
}

// Process decodes the color image, normalizes the IR image, pushes both to
// the display queues and persists the raw capture if requested. The capture
// is released when Process returns.
func (p *Processor) Process(job Job) {
	c := job.Capture
	defer c.Release()

	if c.Color != nil {
		p.processColor(job)
	}
	if c.IR != nil {
		p.processIR(job)
	}
	if job.Persist && job.Sink != nil {
		if err := job.Sink.WriteCapture(c); err != nil {
			p.logger.Warn("Failed to write capture",
				"device", job.Device, "capture_seq", c.Seq, "error", err)
			p.observer.SaveFailed(c.Serial)
		} else {
			p.observer.CaptureSaved(c.Serial)
		}
	}
}

func (p *Processor) processColor(job Job) {
	img := job.Capture.Color
	buf, err := DecodeColor(img)
	if errors.Is(err, ErrUnsupportedFormat) {
		return
	}
	if err != nil {
		p.logger.Warn("Failed to decode color image",
			"device", job.Device,
			"capture_seq", job.Capture.Seq,
			"format", img.Format.String(),
			"size", len(img.Data),
			"error", err)
		p.observer.DecodeFailed(job.Capture.Serial)
		return
	}
	if job.FlipColor {
		buf.FlipHorizontal()
	}
	p.push(job, display.StreamColor, job.Queues.Color.TryPush(buf))
}

func (p *Processor) processIR(job Job) {
	img := job.Capture.IR
	buf, err := NormalizeIR(img, job.Config.DepthMode.IRCeiling(), job.FlipIR)
	if err != nil {
		p.logger.Warn("Failed to normalize IR image",
			"device", job.Device,
			"capture_seq", job.Capture.Seq,
			"format", img.Format.String(),
			"size", len(img.Data),
			"error", err)
		return
	}
	p.push(job, display.StreamIR, job.Queues.IR.TryPush(buf))
}

func (p *Processor) push(job Job, stream display.Stream, ok bool) {
	if ok {
		p.observer.FrameQueued(job.Capture.Serial, stream)
		return
	}
	p.logger.Debug("Display queue full, frame dropped", "device", job.Device, "stream", stream.String())
	p.observer.FrameDropped(job.Capture.Serial, stream)
}
