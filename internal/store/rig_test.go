package store

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/device/sim"
)

func writeRig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write rig: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	rig, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil || rig != nil {
		t.Fatalf("Load(missing) = %v, %v; want nil, nil", rig, err)
	}
}

func TestLoadPerDeviceConfigs(t *testing.T) {
	path := writeRig(t, `
identical_configs = false
save_path = "/data/rec"
continuous_recording = true

[devices."000000000002"]
nickname = "left"
color_format = "BGRA32"
color_resolution = "720p"
depth_mode = "Passive IR"
fps = 15
sync_mode = "Subordinate"
sync_delay_usec = 160

[devices."000000000001"]
enabled = false
`)
	rig, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rig.SavePath != "/data/rec" || !rig.ContinuousRecording || rig.Version != 1 {
		t.Errorf("rig = %+v", rig)
	}

	descs, err := rig.Descriptors()
	if err != nil {
		t.Fatalf("Descriptors() error = %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("descriptors = %d, want 2", len(descs))
	}

	first, second := descs[0], descs[1]
	if first.Serial != "000000000001" || first.Enabled || first.Config != device.DefaultConfig() {
		t.Errorf("first = %+v, want disabled default", first)
	}
	want := device.Config{
		ColorFormat:     device.ColorBGRA32,
		ColorResolution: device.Resolution720P,
		DepthMode:       device.DepthPassiveIR,
		FPS:             device.FPS15,
		SyncRole:        device.RoleSubordinate,
		SyncDelayUsec:   160,
	}
	if second.Nickname != "left" || !second.Enabled || second.Config != want {
		t.Errorf("second = %+v, want %+v", second, want)
	}
}

func TestLoadSharedConfig(t *testing.T) {
	path := writeRig(t, `
identical_configs = true

[devices."*"]
color_resolution = "1080p"
fps = 5

[devices."A"]
nickname = "a"
color_resolution = "3072p"

[devices."B"]
`)
	rig, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	descs, err := rig.Descriptors()
	if err != nil {
		t.Fatalf("Descriptors() error = %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("descriptors = %d, want 2 (shared entry excluded)", len(descs))
	}
	for _, d := range descs {
		if d.Config.ColorResolution != device.Resolution1080P || d.Config.FPS != device.FPS5 {
			t.Errorf("%s config = %+v, want the shared config", d.Serial, d.Config)
		}
	}
}

func TestLoadRejectsUnknownNames(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		field string
	}{
		{name: "color format", entry: `color_format = "RGB24"`, field: "color_format"},
		{name: "resolution", entry: `color_resolution = "4k"`, field: "color_resolution"},
		{name: "depth mode", entry: `depth_mode = "Sonar"`, field: "depth_mode"},
		{name: "fps", entry: `fps = 60`, field: "fps"},
		{name: "sync mode", entry: `sync_mode = "Leader"`, field: "sync_mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRig(t, "[devices.\"X\"]\n"+tt.entry+"\n")
			rig, err := Load(path)
			if !errors.Is(err, device.ErrUnknownEnum) {
				t.Fatalf("Load() error = %v, want ErrUnknownEnum", err)
			}
			if rig != nil {
				t.Error("a rig with an unknown name must not be returned")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name field %s", err, tt.field)
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeRig(t, "identical_configs = [")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail on malformed TOML")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := device.DefaultConfig()
	cfg.SyncRole = device.RoleMaster
	descs := []device.Descriptor{
		{Serial: "S1", Nickname: "front", Config: cfg, Enabled: true},
		{Serial: "S2", Config: device.DefaultConfig(), Enabled: false},
	}

	tests := []struct {
		name      string
		identical bool
	}{
		{name: "per device", identical: false},
		{name: "identical", identical: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "rig.toml")
			if err := Save(path, FromDescriptors(descs, tt.identical, "/rec", true)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			rig, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if rig.IdenticalConfigs != tt.identical || rig.SavePath != "/rec" || !rig.ContinuousRecording {
				t.Errorf("rig = %+v", rig)
			}
			got, err := rig.Descriptors()
			if err != nil {
				t.Fatalf("Descriptors() error = %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("descriptors = %d, want 2", len(got))
			}
			if got[0].Nickname != "front" || !got[0].Enabled || got[0].Config != cfg {
				t.Errorf("S1 = %+v", got[0])
			}
			if got[1].Enabled {
				t.Error("S2 should stay disabled")
			}
			if tt.identical && got[1].Config != cfg {
				t.Errorf("S2 config = %+v, want the shared config", got[1].Config)
			}
		})
	}
}

func TestFromDescriptorsContinuousNeedsSavePath(t *testing.T) {
	rig := FromDescriptors(nil, false, "", true)
	if rig.ContinuousRecording {
		t.Error("continuous recording without a save path should not be stored")
	}
}

type fakeTarget struct {
	registry  *device.Registry
	identical bool
	dir       string
	cont      bool
	refuse    error
}

func (f *fakeTarget) Registry() *device.Registry { return f.registry }

func (f *fakeTarget) SetIdenticalConfigs(identical bool) error {
	if f.refuse != nil {
		return f.refuse
	}
	f.identical = identical
	f.registry.SetIdentical(identical)
	return nil
}

func (f *fakeTarget) SetRecording(dir string, continuous bool) error {
	f.dir, f.cont = dir, continuous
	return nil
}

func newTarget(t *testing.T, n int) (*fakeTarget, *sim.Provider) {
	t.Helper()
	p := sim.New(sim.Options{Devices: sim.Specs(n), Manual: true})
	reg := device.NewRegistry(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := reg.Scan(); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return &fakeTarget{registry: reg}, p
}

func TestApply(t *testing.T) {
	target, p := newTarget(t, 1)
	present := sim.Specs(1)[0].Serial
	absent := sim.Specs(2)[1].Serial

	off := false
	rig := &Rig{
		SavePath:            "/rec",
		ContinuousRecording: true,
		Devices: map[string]DeviceEntry{
			present: {Nickname: "front", FPS: 15},
			absent:  {Nickname: "back", Enabled: &off},
		},
	}
	if err := Apply(rig, target); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if target.identical || target.dir != "/rec" || !target.cont {
		t.Errorf("target = %+v", target)
	}

	d, err := target.registry.Get(present)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Nickname != "front" || d.Config.FPS != device.FPS15 || d.Index != 0 {
		t.Errorf("present descriptor = %+v", d)
	}

	p.SetDevices(sim.Specs(2))
	if _, err := target.registry.Scan(); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	d, err = target.registry.Get(absent)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d.Nickname != "back" || d.Enabled {
		t.Errorf("remembered descriptor = %+v", d)
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	t.Run("undecodable rig", func(t *testing.T) {
		target, _ := newTarget(t, 1)
		serial := sim.Specs(1)[0].Serial
		rig := &Rig{
			SavePath: "/rec",
			Devices: map[string]DeviceEntry{
				serial: {Nickname: "front"},
				"bad":  {DepthMode: "Sonar"},
			},
		}
		if err := Apply(rig, target); !errors.Is(err, device.ErrUnknownEnum) {
			t.Fatalf("Apply() error = %v, want ErrUnknownEnum", err)
		}
		if d, _ := target.registry.Get(serial); d.Nickname != "" || target.dir != "" {
			t.Error("rig partially applied")
		}
	})

	t.Run("refused by session", func(t *testing.T) {
		target, _ := newTarget(t, 1)
		target.refuse = errors.New("busy")
		serial := sim.Specs(1)[0].Serial
		rig := &Rig{Devices: map[string]DeviceEntry{serial: {Nickname: "front"}}}
		if err := Apply(rig, target); err == nil {
			t.Fatal("Apply() should fail when the session refuses")
		}
		if d, _ := target.registry.Get(serial); d.Nickname != "" {
			t.Error("rig partially applied")
		}
	})
}
