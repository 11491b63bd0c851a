//go:build !linux

package hotplug

import (
	"context"
	"errors"
)

// ErrUnsupported is returned on platforms without netlink uevents.
var ErrUnsupported = errors.New("hotplug: not supported on this platform")

// Monitor is unavailable on this platform.
type Monitor struct{}

// NewMonitor always fails on this platform.
func NewMonitor() (*Monitor, error) { return nil, ErrUnsupported }

// Close is a no-op.
func (m *Monitor) Close() error { return nil }

// Run returns ErrUnsupported.
func (m *Monitor) Run(context.Context, chan<- Event) error { return ErrUnsupported }
