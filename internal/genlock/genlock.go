// Package genlock orders device start and stop calls by hardware sync role.
//
// Subordinates must be armed before the master starts emitting sync pulses,
// and the master must stop pulsing before subordinates are torn down:
//
//	start: standalone -> subordinate -> master
//	stop:  master -> subordinate -> standalone
//
// Devices with the same role keep their relative order. The wiring itself
// is never validated.
package genlock

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/smazurov/depthrig/internal/device"
)

// ErrAlreadyStarted is returned by Start while a previous start is active.
var ErrAlreadyStarted = errors.New("genlock: devices already started")

// Member is one device taking part in a session.
type Member struct {
	Handle device.Handle
	Config device.Config
}

// Serial returns the device serial number.
func (m Member) Serial() string { return m.Handle.Serial() }

// StartError reports the device whose start call aborted the sequence.
type StartError struct {
	Serial string
	Role   device.SyncRole
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start %s device %s: %v", e.Role, e.Serial, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

var (
	startRank = map[device.SyncRole]int{device.RoleStandalone: 0, device.RoleSubordinate: 1, device.RoleMaster: 2}
	stopRank  = map[device.SyncRole]int{device.RoleMaster: 0, device.RoleSubordinate: 1, device.RoleStandalone: 2}
)

// StartOrder returns members in start order.
func StartOrder(members []Member) []Member { return ordered(members, startRank) }

// StopOrder returns members in stop order.
func StopOrder(members []Member) []Member { return ordered(members, stopRank) }

func ordered(members []Member, rank map[device.SyncRole]int) []Member {
	out := slices.Clone(members)
	slices.SortStableFunc(out, func(a, b Member) int {
		return rank[a.Config.SyncRole] - rank[b.Config.SyncRole]
	})
	return out
}

// Controller brackets a streaming session.
type Controller struct {
	logger  *slog.Logger
	started []Member
}

// NewController creates a controller.
func NewController(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{logger: logger}
}

// Start starts every member in start order. If any start call fails, the
// members already started are stopped in stop order and a *StartError is
// returned; nothing is left running.
func (c *Controller) Start(members []Member) error {
	if len(c.started) > 0 {
		return ErrAlreadyStarted
	}
	for _, m := range members {
		if err := m.Config.Validate(); err != nil {
			return fmt.Errorf("device %s: %w", m.Serial(), err)
		}
	}

	var started []Member
	for _, m := range StartOrder(members) {
		if err := m.Handle.Start(m.Config); err != nil {
			c.logger.Error("Failed to start device",
				"serial", m.Serial(), "role", m.Config.SyncRole.String(), "error", err)
			if stopErr := stopAll(c.logger, started); stopErr != nil {
				c.logger.Warn("Rollback incomplete", "error", stopErr)
			}
			return &StartError{Serial: m.Serial(), Role: m.Config.SyncRole, Err: err}
		}
		c.logger.Debug("Device started", "serial", m.Serial(), "role", m.Config.SyncRole.String())
		started = append(started, m)
	}

	c.started = started
	c.logger.Info("Devices started", "count", len(started))
	return nil
}

// Stop stops every started member in stop order. All members are stopped
// even if some fail; the failures are joined.
func (c *Controller) Stop() error {
	err := stopAll(c.logger, c.started)
	c.started = nil
	return err
}

// Started returns the members of the active session in start order.
func (c *Controller) Started() []Member {
	return slices.Clone(c.started)
}

func stopAll(logger *slog.Logger, members []Member) error {
	var errs []error
	for _, m := range StopOrder(members) {
		if err := m.Handle.Stop(); err != nil {
			logger.Warn("Failed to stop device", "serial", m.Serial(), "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", m.Serial(), err))
		}
	}
	return errors.Join(errs...)
}
