package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrUnknownDevice is returned when a serial number is not in the registry.
var ErrUnknownDevice = errors.New("unknown device")

// Registry keeps the ordered descriptor list of present devices.
//
// Descriptors are rebuilt from the Provider whenever the number of present
// devices changes, or after Invalidate when the serials at some index
// differ. Settings of serials seen before are carried over.
type Registry struct {
	provider  Provider
	logger    *slog.Logger
	mu        sync.RWMutex
	devices   []Descriptor
	identical bool
	stale     bool
	known     map[string]Descriptor
}

// NewRegistry creates an empty registry. Call Scan to populate it.
func NewRegistry(provider Provider, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		provider:  provider,
		logger:    logger,
		identical: true,
		known:     make(map[string]Descriptor),
	}
}

// Invalidate makes the next Scan read every serial number even if the
// device count is unchanged.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}

// Scan queries the provider and rebuilds the descriptors if the device
// count changed, or if the registry was invalidated and the serials differ.
// It reports whether the list was rebuilt.
func (r *Registry) Scan() (bool, error) {
	count, err := r.provider.Count()
	if err != nil {
		return false, fmt.Errorf("failed to count devices: %w", err)
	}

	r.mu.RLock()
	unchanged := count == len(r.devices) && !r.stale
	r.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	serials := make([]string, 0, count)
	for i := 0; i < count; i++ {
		h, openErr := r.provider.Open(i)
		if openErr != nil {
			return false, fmt.Errorf("failed to open device %d: %w", i, openErr)
		}
		serials = append(serials, h.Serial())
		if closeErr := h.Close(); closeErr != nil {
			r.logger.Warn("Failed to close device after reading serial", "index", i, "error", closeErr)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale = false

	if sameSerials(r.devices, serials) {
		return false, nil
	}
	for _, d := range r.devices {
		r.known[d.Serial] = d
	}

	previous := len(r.devices)
	r.devices = make([]Descriptor, 0, count)
	for i, serial := range serials {
		d, seen := r.known[serial]
		if !seen {
			d = Descriptor{Serial: serial, Config: DefaultConfig(), Enabled: true}
		}
		d.Index = i
		r.devices = append(r.devices, d)
	}

	r.logger.Info("Available devices changed", "from", previous, "to", count)
	return true, nil
}

func sameSerials(devices []Descriptor, serials []string) bool {
	if len(devices) != len(serials) {
		return false
	}
	for i, d := range devices {
		if d.Serial != serials[i] {
			return false
		}
	}
	return true
}

// List returns a copy of all descriptors in index order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.devices))
	copy(out, r.devices)
	return out
}

// Enabled returns the enabled descriptors in index order. When identical
// configs are on and more than one device is enabled, every descriptor
// carries the first enabled device's config.
func (r *Registry) Enabled() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.devices))
	for _, d := range r.devices {
		if d.Enabled {
			out = append(out, d)
		}
	}
	if r.identical && len(out) > 1 {
		for i := 1; i < len(out); i++ {
			out[i].Config = out[0].Config
		}
	}
	return out
}

// Get returns the descriptor for serial.
func (r *Registry) Get(serial string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if d.Serial == serial {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownDevice, serial)
}

// Update applies fn to the descriptor for serial. The resulting config is
// validated before it is stored.
func (r *Registry) Update(serial string, fn func(*Descriptor)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.devices {
		if r.devices[i].Serial != serial {
			continue
		}
		d := r.devices[i]
		fn(&d)
		if err := d.Config.Validate(); err != nil {
			return fmt.Errorf("invalid config for %s: %w", serial, err)
		}
		d.Serial = serial
		d.Index = r.devices[i].Index
		r.devices[i] = d
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownDevice, serial)
}

// SetIdentical toggles whether all enabled devices share one config.
func (r *Registry) SetIdentical(identical bool) {
	r.mu.Lock()
	r.identical = identical
	r.mu.Unlock()
}

// Identical reports whether all enabled devices share one config.
func (r *Registry) Identical() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identical
}

// Remember stores settings for serial. A present device is updated in
// place; otherwise the settings are applied when the device next appears.
func (r *Registry) Remember(d Descriptor) error {
	if err := d.Config.Validate(); err != nil {
		return fmt.Errorf("invalid config for %s: %w", d.Serial, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.devices {
		if r.devices[i].Serial == d.Serial {
			d.Index = r.devices[i].Index
			r.devices[i] = d
			return nil
		}
	}
	r.known[d.Serial] = d
	return nil
}
