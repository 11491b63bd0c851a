package device

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownEnum is returned when a persisted or user supplied name does not
// match any known value.
var ErrUnknownEnum = errors.New("unknown enum value")

// SyncRole is the wired synchronization role of a device.
type SyncRole int

const (
	RoleStandalone SyncRole = iota
	RoleMaster
	RoleSubordinate
)

// ColorFormat is the pixel format requested from the color camera.
type ColorFormat int

const (
	ColorMJPG ColorFormat = iota
	ColorNV12
	ColorYUY2
	ColorBGRA32
)

// ColorResolution selects the color camera mode.
type ColorResolution int

const (
	ResolutionOff ColorResolution = iota
	Resolution720P
	Resolution1080P
	Resolution1440P
	Resolution1536P
	Resolution2160P
	Resolution3072P
)

// DepthMode selects the depth camera mode.
type DepthMode int

const (
	DepthOff DepthMode = iota
	DepthNFOVBinned
	DepthNFOVUnbinned
	DepthWFOVBinned
	DepthWFOVUnbinned
	DepthPassiveIR
)

// FPS is the camera frame rate.
type FPS int

const (
	FPS5 FPS = iota
	FPS15
	FPS30
)

var (
	syncRoleNames        = []string{"Standalone", "Master", "Subordinate"}
	colorFormatNames     = []string{"MJPG", "NV12", "YUY2", "BGRA32"}
	colorResolutionNames = []string{"OFF", "720p", "1080p", "1440p", "1536p", "2160p", "3072p"}
	depthModeNames       = []string{"OFF", "NFOV 2x2 Binned", "NFOV Unbinned", "WFOV 2x2 Binned", "WFOV Unbinned", "Passive IR"}
	fpsValues            = []int{5, 15, 30}
)

func enumName[E ~int](names []string, v E) string {
	if v < 0 || int(v) >= len(names) {
		return "Unknown(" + strconv.Itoa(int(v)) + ")"
	}
	return names[v]
}

func parseEnum[E ~int](kind string, names []string, name string) (E, error) {
	for i, n := range names {
		if n == name {
			return E(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrUnknownEnum, kind, name)
}

func (r SyncRole) String() string { return enumName(syncRoleNames, r) }

// Valid reports whether r is one of the declared roles.
func (r SyncRole) Valid() bool { return r >= 0 && int(r) < len(syncRoleNames) }

// ParseSyncRole converts a role name such as "Master".
func ParseSyncRole(name string) (SyncRole, error) {
	return parseEnum[SyncRole]("sync role", syncRoleNames, name)
}

// SyncRoles lists every role name in declaration order.
func SyncRoles() []string { return append([]string(nil), syncRoleNames...) }

func (f ColorFormat) String() string { return enumName(colorFormatNames, f) }

// Valid reports whether f is a known format.
func (f ColorFormat) Valid() bool { return f >= 0 && int(f) < len(colorFormatNames) }

// PixelFormat maps the requested format to the tag carried by color images.
func (f ColorFormat) PixelFormat() PixelFormat {
	switch f {
	case ColorNV12:
		return PixelNV12
	case ColorYUY2:
		return PixelYUY2
	case ColorBGRA32:
		return PixelBGRA32
	default:
		return PixelMJPG
	}
}

// ParseColorFormat converts a format name such as "MJPG".
func ParseColorFormat(name string) (ColorFormat, error) {
	return parseEnum[ColorFormat]("color format", colorFormatNames, name)
}

// ColorFormats lists every format name in declaration order.
func ColorFormats() []string { return append([]string(nil), colorFormatNames...) }

func (r ColorResolution) String() string { return enumName(colorResolutionNames, r) }

// Valid reports whether r is a known resolution.
func (r ColorResolution) Valid() bool { return r >= 0 && int(r) < len(colorResolutionNames) }

// Dimensions returns the native color image size, or zeros when off.
func (r ColorResolution) Dimensions() (width, height int) {
	switch r {
	case Resolution720P:
		return 1280, 720
	case Resolution1080P:
		return 1920, 1080
	case Resolution1440P:
		return 2560, 1440
	case Resolution1536P:
		return 2048, 1536
	case Resolution2160P:
		return 3840, 2160
	case Resolution3072P:
		return 4096, 3072
	default:
		return 0, 0
	}
}

// ParseColorResolution converts a resolution name such as "1080p".
func ParseColorResolution(name string) (ColorResolution, error) {
	return parseEnum[ColorResolution]("color resolution", colorResolutionNames, name)
}

// ColorResolutions lists every resolution name in declaration order.
func ColorResolutions() []string { return append([]string(nil), colorResolutionNames...) }

func (m DepthMode) String() string { return enumName(depthModeNames, m) }

// Valid reports whether m is a known depth mode.
func (m DepthMode) Valid() bool { return m >= 0 && int(m) < len(depthModeNames) }

// Dimensions returns the native IR image size, or zeros when off.
func (m DepthMode) Dimensions() (width, height int) {
	switch m {
	case DepthNFOVBinned:
		return 320, 288
	case DepthNFOVUnbinned:
		return 640, 576
	case DepthWFOVBinned:
		return 512, 512
	case DepthWFOVUnbinned, DepthPassiveIR:
		return 1024, 1024
	default:
		return 0, 0
	}
}

// IRCeiling is the raw IR sample value displayed as full white. Passive IR
// has a much narrower useful range than the active depth modes.
func (m DepthMode) IRCeiling() uint32 {
	if m == DepthPassiveIR {
		return 100
	}
	return 1000
}

// ParseDepthMode converts a mode name such as "NFOV Unbinned".
func ParseDepthMode(name string) (DepthMode, error) {
	return parseEnum[DepthMode]("depth mode", depthModeNames, name)
}

// DepthModes lists every mode name in declaration order.
func DepthModes() []string { return append([]string(nil), depthModeNames...) }

func (f FPS) String() string {
	if !f.Valid() {
		return "Unknown(" + strconv.Itoa(int(f)) + ")"
	}
	return strconv.Itoa(fpsValues[f])
}

// Valid reports whether f is a supported rate.
func (f FPS) Valid() bool { return f >= 0 && int(f) < len(fpsValues) }

// PerSecond returns the frame rate as a number, or 0 if invalid.
func (f FPS) PerSecond() int {
	if !f.Valid() {
		return 0
	}
	return fpsValues[f]
}

// ParseFPS converts a frame rate in frames per second.
func ParseFPS(perSecond int) (FPS, error) {
	for i, v := range fpsValues {
		if v == perSecond {
			return FPS(i), nil
		}
	}
	return 0, fmt.Errorf("%w: fps %d", ErrUnknownEnum, perSecond)
}

// MarshalText implements encoding.TextMarshaler.
func (r SyncRole) MarshalText() ([]byte, error) { return marshalValid(r.Valid(), r.String()) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *SyncRole) UnmarshalText(b []byte) error { return unmarshalInto(r, ParseSyncRole, b) }

// MarshalText implements encoding.TextMarshaler.
func (f ColorFormat) MarshalText() ([]byte, error) { return marshalValid(f.Valid(), f.String()) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *ColorFormat) UnmarshalText(b []byte) error { return unmarshalInto(f, ParseColorFormat, b) }

// MarshalText implements encoding.TextMarshaler.
func (r ColorResolution) MarshalText() ([]byte, error) { return marshalValid(r.Valid(), r.String()) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ColorResolution) UnmarshalText(b []byte) error {
	return unmarshalInto(r, ParseColorResolution, b)
}

// MarshalText implements encoding.TextMarshaler.
func (m DepthMode) MarshalText() ([]byte, error) { return marshalValid(m.Valid(), m.String()) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *DepthMode) UnmarshalText(b []byte) error { return unmarshalInto(m, ParseDepthMode, b) }

// MarshalText implements encoding.TextMarshaler.
func (f FPS) MarshalText() ([]byte, error) { return marshalValid(f.Valid(), f.String()) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FPS) UnmarshalText(b []byte) error {
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("%w: fps %q", ErrUnknownEnum, string(b))
	}
	v, err := ParseFPS(n)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func marshalValid(valid bool, name string) ([]byte, error) {
	if !valid {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnum, name)
	}
	return []byte(name), nil
}

func unmarshalInto[E any](dst *E, parse func(string) (E, error), b []byte) error {
	v, err := parse(string(b))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
