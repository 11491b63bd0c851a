package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smazurov/depthrig/internal/capture"
	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/device/hotplug"
	"github.com/smazurov/depthrig/internal/device/sim"
	"github.com/smazurov/depthrig/internal/store"
)

// BackendSim selects the synthetic device backend.
const BackendSim = "sim"

// LogCapacity bounds the backend diagnostics channel.
const LogCapacity = 64

// ErrUnknownBackend is returned for unsupported --backend values.
var ErrUnknownBackend = errors.New("unknown backend")

// OpenBackend returns the device provider named by backend. Backend
// diagnostics are posted to logs.
func OpenBackend(backend string, simDevices int, logs *device.LogChannel) (device.Provider, error) {
	switch backend {
	case "", BackendSim:
		return sim.New(sim.Options{Devices: sim.Specs(simDevices), Logs: logs}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// ApplyRigFile loads the rig at path and applies it to the session. A
// missing file leaves the session untouched.
func ApplyRigFile(path string, session *capture.Session) (*store.Rig, error) {
	if path == "" {
		return nil, nil
	}
	rig, err := store.Load(path)
	if err != nil || rig == nil {
		return nil, err
	}
	if err := store.Apply(rig, session); err != nil {
		return nil, err
	}
	return rig, nil
}

// RunHotplug rescans the session whenever a camera is plugged in or
// removed. It returns when ctx is done or when no monitor can be opened;
// the session's periodic rescan covers that case.
func RunHotplug(ctx context.Context, session *capture.Session, logger *slog.Logger) {
	mon, err := hotplug.NewMonitor()
	if err != nil {
		logger.Warn("Hotplug monitor unavailable, relying on periodic rescans", "error", err)
		return
	}
	defer mon.Close()

	events := make(chan hotplug.Event, 16)
	go func() {
		if err := mon.Run(ctx, events); err != nil && ctx.Err() == nil {
			logger.Warn("Hotplug monitor stopped", "error", err)
		}
	}()

	hotplug.Watch(ctx, events, hotplug.DefaultVendorID, hotplug.DefaultDebounce, logger, func() {
		changed, err := session.Refresh()
		switch {
		case err != nil:
			logger.Warn("Device rescan failed", "error", err)
		case changed:
			logger.Info("Device topology changed", "devices", len(session.Devices()))
		}
	})
}
