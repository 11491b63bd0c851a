// Package capture drives a streaming session: it opens and starts the
// enabled devices, polls them once per tick, hands captures to the worker
// pool and presents the processed frames.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/display"
	"github.com/smazurov/depthrig/internal/events"
	"github.com/smazurov/depthrig/internal/genlock"
	"github.com/smazurov/depthrig/internal/metrics"
	"github.com/smazurov/depthrig/internal/processing"
	"github.com/smazurov/depthrig/internal/recording"
	"github.com/smazurov/depthrig/internal/workers"
)

var (
	// ErrAlreadyStreaming is returned by operations that need an idle session.
	ErrAlreadyStreaming = errors.New("already streaming")
	// ErrNotStreaming is returned by operations that need an active session.
	ErrNotStreaming = errors.New("not streaming")
	// ErrNoDevices is returned by StartStreaming when no device is enabled.
	ErrNoDevices = errors.New("no enabled devices")
	// ErrRecordingDisabled is returned by save triggers without a recording
	// directory.
	ErrRecordingDisabled = errors.New("recording disabled")
	// ErrUnknownDevice is returned for serials that are not present.
	ErrUnknownDevice = device.ErrUnknownDevice
)

// Defaults for Options.
const (
	DefaultAcquireTimeout = 5 * time.Millisecond
	DefaultIdlePause      = time.Millisecond
	DefaultRescanInterval = time.Second
)

// Metrics receives pipeline measurements.
type Metrics interface {
	processing.Observer
	CaptureAcquired(serial string)
	StartFailed()
	SetStreaming(on bool)
	SetWorkers(running, queued int)
}

// Options configures a Session.
type Options struct {
	Provider device.Provider
	// Factory creates recording sinks. Defaults to recording.FileFactory.
	Factory recording.Factory
	// Logs is drained once per tick. May be nil.
	Logs *device.LogChannel
	// Bus receives session events. May be nil.
	Bus     *events.Bus
	Metrics Metrics

	AcquireTimeout time.Duration
	IdlePause      time.Duration
	RescanInterval time.Duration
	QueueCapacity  int
	// MaxWorkers caps the worker count. Zero means no cap.
	MaxWorkers int
	// CPUs overrides runtime.NumCPU for worker sizing.
	CPUs int

	// RecordDir enables recording when set.
	RecordDir  string
	Continuous bool

	Logger       *slog.Logger
	DeviceLogger *slog.Logger
	// Component loggers default to Logger.
	ProcessingLogger *slog.Logger
	GenlockLogger    *slog.Logger
	WorkersLogger    *slog.Logger
	RecordingLogger  *slog.Logger
}

type flips struct {
	color bool
	ir    bool
}

// channel is the per-device state of an active session.
type channel struct {
	desc     device.Descriptor
	handle   device.Handle
	queues   display.Pair
	color    display.Slot
	ir       display.Slot
	sink     recording.Sink
	sinkPath string // file behind sink, when file backed
	gate     *Gate
	busy     atomic.Bool // a job for this device is queued or running
}

// Session owns the device registry and, while streaming, the open devices,
// their queues, sinks and the worker pool.
type Session struct {
	opts       Options
	logger     *slog.Logger
	devLogger  *slog.Logger
	registry   *device.Registry
	controller *genlock.Controller
	processor  *processing.Processor
	metrics    Metrics

	mu         sync.Mutex
	streaming  bool
	sessionID  uuid.UUID
	channels   []*channel
	pool       workers.Pool
	recordDir  string
	continuous bool
	flips      map[string]flips
	pending    []func()

	rate tickRate
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	if opts.IdlePause <= 0 {
		opts.IdlePause = DefaultIdlePause
	}
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = DefaultRescanInterval
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = display.DefaultCapacity
	}
	if opts.CPUs <= 0 {
		opts.CPUs = runtime.NumCPU()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Pipeline{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	devLogger := opts.DeviceLogger
	if devLogger == nil {
		devLogger = logger
	}
	for _, l := range []**slog.Logger{&opts.ProcessingLogger, &opts.GenlockLogger, &opts.WorkersLogger, &opts.RecordingLogger} {
		if *l == nil {
			*l = logger
		}
	}

	return &Session{
		opts:       opts,
		logger:     logger,
		devLogger:  devLogger,
		registry:   device.NewRegistry(opts.Provider, logger),
		controller: genlock.NewController(opts.GenlockLogger),
		processor:  processing.NewProcessor(opts.ProcessingLogger, opts.Metrics),
		metrics:    opts.Metrics,
		recordDir:  opts.RecordDir,
		continuous: opts.Continuous,
		flips:      make(map[string]flips),
	}
}

// Registry returns the device registry.
func (s *Session) Registry() *device.Registry { return s.registry }

// Streaming reports whether a session is active.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Devices returns the present devices.
func (s *Session) Devices() []device.Descriptor {
	return s.registry.List()
}

// Rescan rebuilds the device list if the number of present devices
// changed, or if a start attempt found a different device at some index.
// It does nothing while streaming. The scan holds the session lock so a
// concurrent StartStreaming waits for it instead of sharing the devices.
func (s *Session) Rescan() (bool, error) {
	return s.rescan(false)
}

// Refresh re-reads the serial number of every present device and rebuilds
// the list if any changed. Hotplug events use it because a swapped camera
// leaves the count unchanged.
func (s *Session) Refresh() (bool, error) {
	return s.rescan(true)
}

func (s *Session) rescan(force bool) (bool, error) {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return false, nil
	}
	if force {
		s.registry.Invalidate()
	}
	changed, err := s.registry.Scan()
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	if changed {
		s.opts.Bus.Publish(events.DevicesChangedEvent{
			Count:     len(s.registry.List()),
			Timestamp: now(),
		})
	}
	return changed, nil
}

// SetEnabled includes or excludes a device from the next session.
func (s *Session) SetEnabled(serial string, enabled bool) error {
	return s.updateDevice(serial, func(d *device.Descriptor) { d.Enabled = enabled })
}

// SetNickname sets the display and file name of a device.
func (s *Session) SetNickname(serial, nickname string) error {
	return s.updateDevice(serial, func(d *device.Descriptor) { d.Nickname = nickname })
}

// SetConfig replaces the configuration of a device.
func (s *Session) SetConfig(serial string, cfg device.Config) error {
	return s.updateDevice(serial, func(d *device.Descriptor) { d.Config = cfg })
}

// UpdateDevice applies fn to a device's descriptor.
func (s *Session) UpdateDevice(serial string, fn func(*device.Descriptor)) error {
	return s.updateDevice(serial, fn)
}

func (s *Session) updateDevice(serial string, fn func(*device.Descriptor)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return ErrAlreadyStreaming
	}
	if err := s.registry.Update(serial, fn); err != nil {
		return err
	}
	s.opts.Bus.Publish(events.DeviceUpdatedEvent{Serial: serial, Timestamp: now()})
	return nil
}

// SetIdenticalConfigs makes every enabled device use the first enabled
// device's configuration.
func (s *Session) SetIdenticalConfigs(identical bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return ErrAlreadyStreaming
	}
	s.registry.SetIdentical(identical)
	return nil
}

// SetRecording sets the recording directory and policy for the next
// session. An empty dir disables recording.
func (s *Session) SetRecording(dir string, continuous bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return ErrAlreadyStreaming
	}
	s.recordDir = dir
	s.continuous = continuous
	return nil
}

// Recording returns the recording directory and policy.
func (s *Session) Recording() (dir string, continuous bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordDir, s.continuous
}

// SetFlip sets horizontal mirroring of one stream of a device. It takes
// effect on the next dispatched capture.
func (s *Session) SetFlip(serial string, stream display.Stream, on bool) error {
	if _, err := s.registry.Get(serial); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flips[serial]
	switch stream {
	case display.StreamColor:
		f.color = on
	case display.StreamIR:
		f.ir = on
	default:
		return fmt.Errorf("%w: %d", display.ErrUnknownStream, int(stream))
	}
	s.flips[serial] = f
	return nil
}

// Flip reports whether a stream of a device is mirrored.
func (s *Session) Flip(serial string, stream display.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flips[serial]
	if stream == display.StreamIR {
		return f.ir
	}
	return f.color
}

// TriggerSave arms the on-demand gate of one device.
func (s *Session) TriggerSave(serial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.activeChannel(serial)
	if err != nil {
		return err
	}
	if ch.sink == nil {
		return ErrRecordingDisabled
	}
	ch.gate.Trigger()
	s.opts.Bus.Publish(events.SaveTriggeredEvent{Serials: []string{serial}, Timestamp: now()})
	return nil
}

// TriggerSaveAll arms the on-demand gate of every device in the session.
func (s *Session) TriggerSaveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		return ErrNotStreaming
	}
	var serials []string
	for _, ch := range s.channels {
		if ch.sink == nil {
			continue
		}
		ch.gate.Trigger()
		serials = append(serials, ch.desc.Serial)
	}
	if len(serials) == 0 {
		return ErrRecordingDisabled
	}
	s.opts.Bus.Publish(events.SaveTriggeredEvent{Serials: serials, Timestamp: now()})
	return nil
}

// ApplyWhenIdle runs fn now if no session is active, otherwise right after
// the active session stops.
func (s *Session) ApplyWhenIdle(fn func()) {
	s.mu.Lock()
	if s.streaming {
		s.pending = append(s.pending, fn)
		s.mu.Unlock()
		s.logger.Info("Deferring configuration change until streaming stops")
		return
	}
	s.mu.Unlock()
	fn()
}

func (s *Session) activeChannel(serial string) (*channel, error) {
	if !s.streaming {
		return nil, ErrNotStreaming
	}
	for _, ch := range s.channels {
		if ch.desc.Serial == serial {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, serial)
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
