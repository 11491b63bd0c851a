// Package device describes the camera devices driven by the capture pipeline:
// their configuration, the raw captures they produce and the narrow contract
// a hardware backend has to satisfy.
package device

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is returned by Handle.TryAcquire when no capture became
// available within the timeout. It is expected whenever the tick rate is
// higher than the device frame rate.
var ErrTimeout = errors.New("device: acquire timed out")

// Provider enumerates and opens devices.
type Provider interface {
	// Count returns the number of physically present devices.
	Count() (int, error)

	// Open opens the device at index.
	Open(index int) (Handle, error)
}

// Handle is an open device.
type Handle interface {
	// Serial returns the device serial number.
	Serial() string

	// Start begins streaming with cfg.
	Start(cfg Config) error

	// Stop ends streaming. Stopping a stopped device is a no-op.
	Stop() error

	// TryAcquire waits at most timeout for the next capture. It returns
	// ErrTimeout when none arrived.
	TryAcquire(timeout time.Duration) (*Capture, error)

	// Close releases the device.
	Close() error
}

// Config is the streaming configuration of one device.
type Config struct {
	ColorFormat     ColorFormat     `json:"color_format"`
	ColorResolution ColorResolution `json:"color_resolution"`
	DepthMode       DepthMode       `json:"depth_mode"`
	FPS             FPS             `json:"fps"`
	SyncRole        SyncRole        `json:"sync_role"`
	// SyncDelayUsec offsets a subordinate's capture from the master pulse.
	SyncDelayUsec uint32 `json:"sync_delay_usec"`
}

// DefaultConfig returns the configuration used for newly discovered devices.
func DefaultConfig() Config {
	return Config{
		ColorFormat:     ColorMJPG,
		ColorResolution: Resolution2160P,
		DepthMode:       DepthNFOVUnbinned,
		FPS:             FPS30,
		SyncRole:        RoleStandalone,
	}
}

// Validate rejects out of range values so that no name table or order
// table is ever indexed with them.
func (c Config) Validate() error {
	switch {
	case !c.ColorFormat.Valid():
		return fmt.Errorf("%w: color format %d", ErrUnknownEnum, int(c.ColorFormat))
	case !c.ColorResolution.Valid():
		return fmt.Errorf("%w: color resolution %d", ErrUnknownEnum, int(c.ColorResolution))
	case !c.DepthMode.Valid():
		return fmt.Errorf("%w: depth mode %d", ErrUnknownEnum, int(c.DepthMode))
	case !c.FPS.Valid():
		return fmt.Errorf("%w: fps %d", ErrUnknownEnum, int(c.FPS))
	case !c.SyncRole.Valid():
		return fmt.Errorf("%w: sync role %d", ErrUnknownEnum, int(c.SyncRole))
	}
	return nil
}

// PixelFormat tags the layout of an Image.
type PixelFormat int

const (
	PixelMJPG PixelFormat = iota
	PixelNV12
	PixelYUY2
	PixelBGRA32
	PixelIR16
	PixelDepth16
)

func (p PixelFormat) String() string {
	switch p {
	case PixelMJPG:
		return "MJPG"
	case PixelNV12:
		return "NV12"
	case PixelYUY2:
		return "YUY2"
	case PixelBGRA32:
		return "BGRA32"
	case PixelIR16:
		return "IR16"
	case PixelDepth16:
		return "DEPTH16"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
}

// Image is one sub-image of a capture.
type Image struct {
	Format PixelFormat
	Width  int
	Height int
	// Stride is the number of bytes per row. Zero means tightly packed.
	Stride int
	Data   []byte
}

// RowStride returns Stride, or the packed stride for the format.
func (img *Image) RowStride() int {
	if img.Stride > 0 {
		return img.Stride
	}
	switch img.Format {
	case PixelBGRA32:
		return img.Width * 4
	case PixelIR16, PixelDepth16, PixelYUY2:
		return img.Width * 2
	case PixelNV12:
		return img.Width
	default:
		return 0
	}
}

// Capture is the bundle returned by one acquisition. It is owned by the
// goroutine processing it until Release is called.
type Capture struct {
	Serial    string
	Seq       uint64
	Timestamp time.Duration
	Color     *Image
	IR        *Image
	Depth     *Image

	release     func()
	releaseOnce sync.Once
}

// NewCapture creates a capture whose release hook runs once on Release.
func NewCapture(serial string, seq uint64, release func()) *Capture {
	return &Capture{Serial: serial, Seq: seq, release: release}
}

// Release returns the capture's memory to the device backend. It is safe
// to call more than once.
func (c *Capture) Release() {
	c.releaseOnce.Do(func() {
		if c.release != nil {
			c.release()
		}
	})
}

// Empty reports whether the capture carries no images.
func (c *Capture) Empty() bool {
	return c.Color == nil && c.IR == nil && c.Depth == nil
}
