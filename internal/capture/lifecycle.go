package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/display"
	"github.com/smazurov/depthrig/internal/events"
	"github.com/smazurov/depthrig/internal/genlock"
	"github.com/smazurov/depthrig/internal/recording"
	"github.com/smazurov/depthrig/internal/workers"
)

// StartStreaming opens the enabled devices, creates their queues and
// recording sinks, and starts them in sync role order. On failure every
// resource acquired by the attempt is released and the session stays idle.
func (s *Session) StartStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return ErrAlreadyStreaming
	}

	descs := s.registry.Enabled()
	if len(descs) == 0 {
		return ErrNoDevices
	}

	sessionID := uuid.New()
	channels, err := s.openChannels(descs)
	if err != nil {
		return s.abortStart(err, "", channels, nil)
	}

	if s.recordDir != "" {
		if err := s.createSinks(sessionID, channels); err != nil {
			return s.abortStart(err, "", channels, nil)
		}
	}

	pool := workers.NewPool(&workers.PoolOptions{
		Workers: workers.SizeFor(len(channels), s.opts.CPUs, s.opts.MaxWorkers),
		Logger:  s.opts.WorkersLogger,
	})

	members := make([]genlock.Member, len(channels))
	for i, ch := range channels {
		members[i] = genlock.Member{Handle: ch.handle, Config: ch.desc.Config}
	}
	if err := s.controller.Start(members); err != nil {
		var startErr *genlock.StartError
		serial := ""
		if errors.As(err, &startErr) {
			serial = startErr.Serial
		}
		return s.abortStart(err, serial, channels, pool)
	}

	s.streaming = true
	s.sessionID = sessionID
	s.channels = channels
	s.pool = pool
	s.metrics.SetStreaming(true)

	serials := make([]string, 0, len(members))
	for _, m := range genlock.StartOrder(members) {
		serials = append(serials, m.Serial())
	}
	s.logger.Info("Streaming started",
		"session_id", sessionID.String(),
		"devices", len(channels),
		"workers", pool.Size(),
		"recording", s.recordDir != "",
		"continuous", s.continuous)
	s.opts.Bus.Publish(events.StreamingStartedEvent{
		SessionID: sessionID.String(),
		Devices:   serials,
		Recording: s.recordDir != "",
		Timestamp: now(),
	})
	return nil
}

func (s *Session) openChannels(descs []device.Descriptor) ([]*channel, error) {
	channels := make([]*channel, 0, len(descs))
	for _, d := range descs {
		h, err := s.opts.Provider.Open(d.Index)
		if err != nil {
			return channels, fmt.Errorf("failed to open device %s: %w", d.Serial, err)
		}
		ch := &channel{
			desc:   d,
			handle: h,
			queues: display.NewPair(s.opts.QueueCapacity),
			gate:   NewGate(s.continuous),
		}
		channels = append(channels, ch)
		if h.Serial() != d.Serial {
			s.registry.Invalidate()
			return channels, fmt.Errorf("device at index %d is %s, expected %s: rescan required", d.Index, h.Serial(), d.Serial)
		}
	}
	return channels, nil
}

func (s *Session) createSinks(sessionID uuid.UUID, channels []*channel) error {
	factory := s.opts.Factory
	if factory == nil {
		factory = recording.FileFactory{SessionID: sessionID, Logger: s.opts.RecordingLogger}
	}
	start := time.Now()
	for _, ch := range channels {
		path := filepath.Join(s.recordDir, recording.FileName(start, ch.desc.Name()))
		sink, err := factory.Create(path, ch.handle, ch.desc.Config)
		if err != nil {
			return fmt.Errorf("failed to create recording for %s: %w", ch.desc.Serial, err)
		}
		ch.sink = sink
		if f, ok := sink.(interface{ Path() string }); ok {
			path = f.Path()
			ch.sinkPath = path
		}
		if err := sink.WriteHeader(); err != nil {
			return fmt.Errorf("failed to write recording header for %s: %w", ch.desc.Serial, err)
		}
		s.opts.RecordingLogger.Info("Recording created", "serial", ch.desc.Serial, "path", path)
		s.opts.Bus.Publish(events.RecordingCreatedEvent{
			SessionID: sessionID.String(),
			Serial:    ch.desc.Serial,
			Path:      path,
			Timestamp: now(),
		})
	}
	return nil
}

// abortStart releases what a failed start attempt acquired. Devices that
// were started have already been stopped by the controller.
func (s *Session) abortStart(cause error, serial string, channels []*channel, pool workers.Pool) error {
	if pool != nil {
		pool.Close()
	}
	if err := closeChannels(channels); err != nil {
		s.logger.Warn("Cleanup after failed start incomplete", "error", err)
	}
	removeRecordings(s.opts.RecordingLogger, channels)
	s.metrics.StartFailed()
	s.logger.Error("Failed to start streaming", "error", cause)
	s.opts.Bus.Publish(events.StreamingFailedEvent{Serial: serial, Error: cause.Error(), Timestamp: now()})
	return cause
}

// StopStreaming stops the devices in sync role order, waits for in-flight
// processing to finish, then closes the sinks and devices.
func (s *Session) StopStreaming() error {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}

	var errs []error
	if err := s.controller.Stop(); err != nil {
		errs = append(errs, err)
	}
	// Sinks stay open until every job referencing them has run.
	s.pool.Close()
	if err := closeChannels(s.channels); err != nil {
		errs = append(errs, err)
	}

	sessionID := s.sessionID
	s.streaming = false
	s.channels = nil
	s.pool = nil
	s.sessionID = uuid.Nil
	pending := s.pending
	s.pending = nil
	s.metrics.SetStreaming(false)
	s.metrics.SetWorkers(0, 0)
	s.rate.reset()
	s.mu.Unlock()

	s.logger.Info("Streaming stopped", "session_id", sessionID.String())
	s.opts.Bus.Publish(events.StreamingStoppedEvent{SessionID: sessionID.String(), Timestamp: now()})

	for _, fn := range pending {
		fn()
	}
	return errors.Join(errs...)
}

// Close stops an active session.
func (s *Session) Close() error {
	err := s.StopStreaming()
	if errors.Is(err, ErrNotStreaming) {
		return nil
	}
	return err
}

// removeRecordings deletes the files created for an aborted start. They
// hold no capture, only a header.
func removeRecordings(logger *slog.Logger, channels []*channel) {
	for _, ch := range channels {
		if ch.sinkPath == "" {
			continue
		}
		if err := os.Remove(ch.sinkPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Failed to remove unused recording", "path", ch.sinkPath, "error", err)
		}
	}
}

func closeChannels(channels []*channel) error {
	var errs []error
	for _, ch := range channels {
		if ch.sink != nil {
			if err := ch.sink.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close recording %s: %w", ch.desc.Serial, err))
			}
		}
	}
	for _, ch := range channels {
		if err := ch.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device %s: %w", ch.desc.Serial, err))
		}
	}
	return errors.Join(errs...)
}
