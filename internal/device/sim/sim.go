// Package sim is a synthetic camera backend. It produces deterministic
// color and IR captures at the configured frame rate so the pipeline can be
// run and tested without hardware.
package sim

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/depthrig/internal/device"
)

var (
	// ErrNotStarted is returned by TryAcquire before Start.
	ErrNotStarted = errors.New("sim: device not started")
	// ErrStartFailed is returned by devices configured to fail on start.
	ErrStartFailed = errors.New("sim: start failed")
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("sim: handle closed")
)

// DefaultScale divides native resolutions to keep synthetic frames small.
const DefaultScale = 8

// Spec describes one simulated device.
type Spec struct {
	Serial string
	// FailStart makes Start return ErrStartFailed.
	FailStart bool
	// CorruptColor makes MJPG payloads undecodable.
	CorruptColor bool
}

// Options configures a Provider.
type Options struct {
	Devices []Spec
	// Logs receives backend diagnostics. May be nil.
	Logs *device.LogChannel
	// Scale divides native resolutions. Zero means DefaultScale.
	Scale int
	// Manual disables frame pacing: captures are only produced by Emit.
	Manual bool
}

// Provider implements device.Provider.
type Provider struct {
	mu      sync.Mutex
	opts    Options
	devices []*simDevice
	calls   []string
}

// New creates a provider with the given devices.
func New(opts Options) *Provider {
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}
	p := &Provider{opts: opts}
	p.setSpecs(opts.Devices)
	return p
}

// Specs returns n devices with generated serial numbers.
func Specs(n int) []Spec {
	specs := make([]Spec, n)
	for i := range specs {
		specs[i] = Spec{Serial: fmt.Sprintf("%012d", 100000000001+i)}
	}
	return specs
}

// SetDevices replaces the set of present devices, simulating a plug or
// unplug. Devices keep their state when their serial stays present.
func (p *Provider) SetDevices(specs []Spec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setSpecs(specs)
}

func (p *Provider) setSpecs(specs []Spec) {
	existing := make(map[string]*simDevice, len(p.devices))
	for _, d := range p.devices {
		existing[d.spec.Serial] = d
	}
	p.devices = p.devices[:0]
	for _, spec := range specs {
		if d, ok := existing[spec.Serial]; ok {
			d.spec = spec
			p.devices = append(p.devices, d)
			continue
		}
		p.devices = append(p.devices, &simDevice{provider: p, spec: spec})
	}
}

// Count implements device.Provider.
func (p *Provider) Count() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.devices), nil
}

// Open implements device.Provider.
func (p *Provider) Open(index int) (device.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.devices) {
		return nil, fmt.Errorf("sim: no device at index %d", index)
	}
	return &Handle{dev: p.devices[index]}, nil
}

// Emit queues one capture for serial. Used with Options.Manual.
func (p *Provider) Emit(serial string) error {
	d, err := p.lookup(serial)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return ErrNotStarted
	}
	d.pending++
	return nil
}

// Outstanding returns the number of captures acquired from serial and not
// yet released.
func (p *Provider) Outstanding(serial string) int {
	d, err := p.lookup(serial)
	if err != nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outstanding
}

// Started reports whether serial is currently streaming.
func (p *Provider) Started(serial string) bool {
	d, err := p.lookup(serial)
	if err != nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Calls returns the start and stop calls issued so far, as "start:<serial>"
// and "stop:<serial>".
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Provider) record(call, serial string) {
	p.mu.Lock()
	p.calls = append(p.calls, call+":"+serial)
	p.mu.Unlock()
}

func (p *Provider) lookup(serial string) (*simDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.devices {
		if d.spec.Serial == serial {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", device.ErrUnknownDevice, serial)
}

func (p *Provider) log(level slog.Level, serial, msg string) {
	p.opts.Logs.Post(device.LogMessage{Level: level, Serial: serial, Message: msg})
}

type simDevice struct {
	provider *Provider
	spec     Spec

	mu          sync.Mutex
	started     bool
	cfg         device.Config
	period      time.Duration
	next        time.Time
	seq         uint64
	pending     int
	outstanding int
	color       *device.Image
	ir          *device.Image
	depth       *device.Image
}

// Handle implements device.Handle.
type Handle struct {
	dev    *simDevice
	closed bool
}

// Serial implements device.Handle.
func (h *Handle) Serial() string { return h.dev.spec.Serial }

// Start implements device.Handle.
func (h *Handle) Start(cfg device.Config) error {
	if h.closed {
		return ErrClosed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	d := h.dev
	p := d.provider
	p.record("start", d.spec.Serial)

	if d.spec.FailStart {
		p.log(slog.LevelError, d.spec.Serial, "Failed to start cameras")
		return fmt.Errorf("%w: %s", ErrStartFailed, d.spec.Serial)
	}

	colorImg, err := colorImage(cfg, p.opts.Scale, d.spec.CorruptColor)
	if err != nil {
		return err
	}
	ir, depth := depthImages(cfg.DepthMode, p.opts.Scale)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	d.cfg = cfg
	d.period = time.Second / time.Duration(cfg.FPS.PerSecond())
	d.next = time.Now().Add(d.period)
	d.seq = 0
	d.pending = 0
	d.color, d.ir, d.depth = colorImg, ir, depth
	p.log(slog.LevelInfo, d.spec.Serial, fmt.Sprintf("Cameras started: %s %s, %s, %s fps, %s",
		cfg.ColorFormat, cfg.ColorResolution, cfg.DepthMode, cfg.FPS, cfg.SyncRole))
	return nil
}

// Stop implements device.Handle.
func (h *Handle) Stop() error {
	d := h.dev
	d.mu.Lock()
	wasStarted := d.started
	d.started = false
	d.pending = 0
	d.mu.Unlock()
	if wasStarted {
		d.provider.record("stop", d.spec.Serial)
	}
	return nil
}

// TryAcquire implements device.Handle. Without Manual mode captures are
// paced at the configured frame rate.
func (h *Handle) TryAcquire(timeout time.Duration) (*device.Capture, error) {
	if h.closed {
		return nil, ErrClosed
	}
	d := h.dev

	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil, ErrNotStarted
	}
	if d.provider.opts.Manual {
		if d.pending == 0 {
			d.mu.Unlock()
			return nil, device.ErrTimeout
		}
		d.pending--
		c := d.captureLocked()
		d.mu.Unlock()
		return c, nil
	}

	wait := time.Until(d.next)
	if wait > timeout {
		d.mu.Unlock()
		time.Sleep(timeout)
		return nil, device.ErrTimeout
	}
	d.next = d.next.Add(d.period)
	if behind := time.Since(d.next); behind > d.period {
		d.next = time.Now().Add(d.period)
	}
	c := d.captureLocked()
	d.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	return c, nil
}

// Close implements device.Handle.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.Stop()
}

func (d *simDevice) captureLocked() *device.Capture {
	d.seq++
	d.outstanding++
	c := device.NewCapture(d.spec.Serial, d.seq, func() {
		d.mu.Lock()
		d.outstanding--
		d.mu.Unlock()
	})
	c.Timestamp = time.Duration(d.seq) * d.period
	c.Color, c.IR, c.Depth = d.color, d.ir, d.depth
	return c
}

func colorImage(cfg device.Config, scale int, corrupt bool) (*device.Image, error) {
	w, h := cfg.ColorResolution.Dimensions()
	if w == 0 {
		return nil, nil
	}
	w, h = max(w/scale, 1), max(h/scale, 1)
	img := &device.Image{Format: cfg.ColorFormat.PixelFormat(), Width: w, Height: h}

	switch img.Format {
	case device.PixelMJPG:
		if corrupt {
			img.Data = []byte{0xff, 0xd8, 0x00, 0x01, 0x02}
			return img, nil
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 85}); err != nil {
			return nil, fmt.Errorf("sim: encode color: %w", err)
		}
		img.Data = buf.Bytes()
	case device.PixelBGRA32:
		src := gradient(w, h)
		img.Data = make([]byte, w*h*4)
		for i := 0; i < w*h; i++ {
			img.Data[i*4+0] = src.Pix[i*4+2]
			img.Data[i*4+1] = src.Pix[i*4+1]
			img.Data[i*4+2] = src.Pix[i*4+0]
			img.Data[i*4+3] = 0xff
		}
	case device.PixelNV12:
		img.Data = make([]byte, w*h*3/2)
	case device.PixelYUY2:
		img.Data = make([]byte, w*h*2)
	}
	return img, nil
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

// depthImages returns an IR ramp that overshoots the mode's ceiling, so
// the normalized output covers the full gray range, and a matching depth
// image for the active modes.
func depthImages(mode device.DepthMode, scale int) (ir, depth *device.Image) {
	w, h := mode.Dimensions()
	if w == 0 {
		return nil, nil
	}
	w, h = max(w/scale, 1), max(h/scale, 1)
	top := mode.IRCeiling() * 5 / 4

	ir = &device.Image{Format: device.PixelIR16, Width: w, Height: h, Data: make([]byte, w*h*2)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint16(uint32(x) * top / uint32(w))
			i := (y*w + x) * 2
			ir.Data[i] = byte(v)
			ir.Data[i+1] = byte(v >> 8)
		}
	}
	if mode == device.DepthPassiveIR {
		return ir, nil
	}

	depth = &device.Image{Format: device.PixelDepth16, Width: w, Height: h, Data: make([]byte, w*h*2)}
	for y := 0; y < h; y++ {
		v := uint16(500 + y*3000/h)
		for x := 0; x < w; x++ {
			i := (y*w + x) * 2
			depth.Data[i] = byte(v)
			depth.Data[i+1] = byte(v >> 8)
		}
	}
	return ir, depth
}
