// Package store persists the rig configuration: which devices take part,
// their nicknames and stream settings, and the recording policy.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/depthrig/internal/device"
)

// DefaultPath is used when no rig file is configured.
const DefaultPath = "rig.toml"

// SharedKey holds the config used by every device when configs are
// identical.
const SharedKey = "*"

const currentVersion = 1

// DeviceEntry is the persisted form of one device. Enum fields are stored by
// name; an empty field keeps the default value.
type DeviceEntry struct {
	Nickname        string `toml:"nickname,omitempty"`
	Enabled         *bool  `toml:"enabled,omitempty"`
	ColorFormat     string `toml:"color_format,omitempty"`
	ColorResolution string `toml:"color_resolution,omitempty"`
	DepthMode       string `toml:"depth_mode,omitempty"`
	FPS             int    `toml:"fps,omitempty"`
	SyncMode        string `toml:"sync_mode,omitempty"`
	SyncDelayUsec   uint32 `toml:"sync_delay_usec,omitempty"`
}

// Rig is the complete rig file.
type Rig struct {
	Version             int                    `toml:"version"`
	IdenticalConfigs    bool                   `toml:"identical_configs"`
	SavePath            string                 `toml:"save_path,omitempty"`
	ContinuousRecording bool                   `toml:"continuous_recording,omitempty"`
	Devices             map[string]DeviceEntry `toml:"devices"`
}

// EntryFor returns the persisted form of cfg.
func EntryFor(cfg device.Config) DeviceEntry {
	return DeviceEntry{
		ColorFormat:     cfg.ColorFormat.String(),
		ColorResolution: cfg.ColorResolution.String(),
		DepthMode:       cfg.DepthMode.String(),
		FPS:             cfg.FPS.PerSecond(),
		SyncMode:        cfg.SyncRole.String(),
		SyncDelayUsec:   cfg.SyncDelayUsec,
	}
}

// Config decodes the entry's stream settings on top of base.
func (e DeviceEntry) Config(base device.Config) (device.Config, error) {
	cfg := base
	var err error
	if e.ColorFormat != "" {
		if cfg.ColorFormat, err = device.ParseColorFormat(e.ColorFormat); err != nil {
			return cfg, fmt.Errorf("color_format: %w", err)
		}
	}
	if e.ColorResolution != "" {
		if cfg.ColorResolution, err = device.ParseColorResolution(e.ColorResolution); err != nil {
			return cfg, fmt.Errorf("color_resolution: %w", err)
		}
	}
	if e.DepthMode != "" {
		if cfg.DepthMode, err = device.ParseDepthMode(e.DepthMode); err != nil {
			return cfg, fmt.Errorf("depth_mode: %w", err)
		}
	}
	if e.FPS != 0 {
		if cfg.FPS, err = device.ParseFPS(e.FPS); err != nil {
			return cfg, fmt.Errorf("fps: %w", err)
		}
	}
	if e.SyncMode != "" {
		if cfg.SyncRole, err = device.ParseSyncRole(e.SyncMode); err != nil {
			return cfg, fmt.Errorf("sync_mode: %w", err)
		}
	}
	if e.SyncDelayUsec != 0 {
		cfg.SyncDelayUsec = e.SyncDelayUsec
	}
	return cfg, nil
}

// Descriptors decodes every device entry. With identical configs every
// device takes the shared entry's settings. The result is sorted by serial
// and carries no index.
func (r *Rig) Descriptors() ([]device.Descriptor, error) {
	base := device.DefaultConfig()
	if shared, ok := r.Devices[SharedKey]; ok && r.IdenticalConfigs {
		cfg, err := shared.Config(base)
		if err != nil {
			return nil, fmt.Errorf("devices.%q.%w", SharedKey, err)
		}
		base = cfg
	}

	serials := make([]string, 0, len(r.Devices))
	for serial := range r.Devices {
		if serial != SharedKey {
			serials = append(serials, serial)
		}
	}
	sort.Strings(serials)

	out := make([]device.Descriptor, 0, len(serials))
	for _, serial := range serials {
		e := r.Devices[serial]
		cfg := base
		if !r.IdenticalConfigs {
			var err error
			if cfg, err = e.Config(base); err != nil {
				return nil, fmt.Errorf("devices.%q.%w", serial, err)
			}
		}
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		out = append(out, device.Descriptor{
			Serial:   serial,
			Nickname: e.Nickname,
			Config:   cfg,
			Enabled:  enabled,
		})
	}
	return out, nil
}

// Load reads and validates a rig file. A missing file yields a nil rig and
// no error.
func Load(path string) (*Rig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rig file: %w", err)
	}

	var rig Rig
	if err := toml.Unmarshal(data, &rig); err != nil {
		return nil, fmt.Errorf("failed to parse rig file: %w", err)
	}
	if rig.Version == 0 {
		rig.Version = currentVersion
	}
	if rig.Devices == nil {
		rig.Devices = make(map[string]DeviceEntry)
	}
	if _, err := rig.Descriptors(); err != nil {
		return nil, fmt.Errorf("invalid rig file %s: %w", path, err)
	}
	return &rig, nil
}

// Save writes rig to path, creating the parent directory.
func Save(path string, rig *Rig) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create rig directory: %w", err)
		}
	}
	if rig.Version == 0 {
		rig.Version = currentVersion
	}

	data, err := toml.Marshal(rig)
	if err != nil {
		return fmt.Errorf("failed to marshal rig: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rig file: %w", err)
	}
	return nil
}

// FromDescriptors captures the current settings. With identical configs the
// first enabled device's config is stored once under SharedKey.
func FromDescriptors(descs []device.Descriptor, identical bool, savePath string, continuous bool) *Rig {
	rig := &Rig{
		Version:             currentVersion,
		IdenticalConfigs:    identical,
		SavePath:            savePath,
		ContinuousRecording: continuous && savePath != "",
		Devices:             make(map[string]DeviceEntry, len(descs)+1),
	}

	if identical {
		for _, d := range descs {
			if d.Enabled {
				rig.Devices[SharedKey] = EntryFor(d.Config)
				break
			}
		}
	}

	for _, d := range descs {
		var e DeviceEntry
		if !identical {
			e = EntryFor(d.Config)
		}
		e.Nickname = d.Nickname
		enabled := d.Enabled
		e.Enabled = &enabled
		rig.Devices[d.Serial] = e
	}
	return rig
}
