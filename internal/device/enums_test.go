package device

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEnumNamesRoundTrip(t *testing.T) {
	for _, name := range SyncRoles() {
		r, err := ParseSyncRole(name)
		if err != nil || r.String() != name {
			t.Errorf("sync role %q: got %v, %v", name, r, err)
		}
	}
	for _, name := range ColorFormats() {
		f, err := ParseColorFormat(name)
		if err != nil || f.String() != name {
			t.Errorf("color format %q: got %v, %v", name, f, err)
		}
	}
	for _, name := range ColorResolutions() {
		r, err := ParseColorResolution(name)
		if err != nil || r.String() != name {
			t.Errorf("color resolution %q: got %v, %v", name, r, err)
		}
	}
	for _, name := range DepthModes() {
		m, err := ParseDepthMode(name)
		if err != nil || m.String() != name {
			t.Errorf("depth mode %q: got %v, %v", name, m, err)
		}
	}
}

func TestUnknownEnumValues(t *testing.T) {
	if got := SyncRole(7).String(); got != "Unknown(7)" {
		t.Errorf("SyncRole(7).String() = %q", got)
	}
	if _, err := ParseDepthMode("Hyper IR"); !errors.Is(err, ErrUnknownEnum) {
		t.Errorf("expected ErrUnknownEnum, got %v", err)
	}
	if _, err := ParseFPS(60); !errors.Is(err, ErrUnknownEnum) {
		t.Errorf("expected ErrUnknownEnum for 60 fps, got %v", err)
	}
	if _, err := ColorFormat(-1).MarshalText(); !errors.Is(err, ErrUnknownEnum) {
		t.Errorf("expected marshal error for invalid color format, got %v", err)
	}
}

func TestIRCeiling(t *testing.T) {
	tests := []struct {
		mode DepthMode
		want uint32
	}{
		{DepthPassiveIR, 100},
		{DepthNFOVUnbinned, 1000},
		{DepthWFOVBinned, 1000},
		{DepthOff, 1000},
	}
	for _, tt := range tests {
		if got := tt.mode.IRCeiling(); got != tt.want {
			t.Errorf("%s ceiling = %d, want %d", tt.mode, got, tt.want)
		}
	}
}

func TestConfigJSON(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SyncRole = RoleSubordinate
	cfg.SyncDelayUsec = 160

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Config
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if got != cfg {
		t.Errorf("got %+v, want %+v", got, cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad format", func(c *Config) { c.ColorFormat = 9 }, true},
		{"bad resolution", func(c *Config) { c.ColorResolution = -1 }, true},
		{"bad depth", func(c *Config) { c.DepthMode = 6 }, true},
		{"bad fps", func(c *Config) { c.FPS = 3 }, true},
		{"bad role", func(c *Config) { c.SyncRole = 3 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownEnum) {
				t.Errorf("expected ErrUnknownEnum, got %v", err)
			}
		})
	}
}
