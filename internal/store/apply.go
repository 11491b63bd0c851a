package store

import (
	"fmt"

	"github.com/smazurov/depthrig/internal/device"
)

// Target is the idle session a rig is applied to.
type Target interface {
	Registry() *device.Registry
	SetIdenticalConfigs(identical bool) error
	SetRecording(dir string, continuous bool) error
}

// Apply decodes rig and hands its settings to t. Nothing is changed when
// the rig does not decode or when t refuses the session-wide settings.
func Apply(rig *Rig, t Target) error {
	descs, err := rig.Descriptors()
	if err != nil {
		return err
	}
	if err := t.SetIdenticalConfigs(rig.IdenticalConfigs); err != nil {
		return fmt.Errorf("failed to apply rig: %w", err)
	}
	if err := t.SetRecording(rig.SavePath, rig.ContinuousRecording); err != nil {
		return fmt.Errorf("failed to apply rig: %w", err)
	}

	reg := t.Registry()
	for _, d := range descs {
		if err := reg.Remember(d); err != nil {
			return fmt.Errorf("failed to apply rig: %w", err)
		}
	}
	return nil
}
