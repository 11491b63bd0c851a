package recording

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/smazurov/depthrig/internal/device"
)

// Container layout: a zstd stream of frames, each a kind byte, a 4 byte
// big-endian length and a msgpack body. The first frame is the header.
const (
	magic   = "DKR"
	version = 1

	kindHeader  byte = 'H'
	kindCapture byte = 'C'

	maxFrameSize = 256 << 20
)

var (
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("recording: sink closed")
	// ErrNoHeader is returned when captures are written before the header.
	ErrNoHeader = errors.New("recording: header not written")
	// ErrBadContainer is returned by Open for files that are not recordings.
	ErrBadContainer = errors.New("recording: not a depthrig container")
)

// Header describes the device and configuration of a recording.
type Header struct {
	Magic           string `msgpack:"magic"`
	Version         int    `msgpack:"version"`
	SessionID       string `msgpack:"session_id"`
	Serial          string `msgpack:"serial"`
	StartedAt       int64  `msgpack:"started_at"`
	ColorFormat     string `msgpack:"color_format"`
	ColorResolution string `msgpack:"color_resolution"`
	DepthMode       string `msgpack:"depth_mode"`
	FPS             string `msgpack:"fps"`
	SyncRole        string `msgpack:"sync_role"`
	SyncDelayUsec   uint32 `msgpack:"sync_delay_usec"`
}

// NewHeader builds the header for a device recording.
func NewHeader(session uuid.UUID, serial string, cfg device.Config) Header {
	return Header{
		Magic:           magic,
		Version:         version,
		SessionID:       session.String(),
		Serial:          serial,
		StartedAt:       time.Now().Unix(),
		ColorFormat:     cfg.ColorFormat.String(),
		ColorResolution: cfg.ColorResolution.String(),
		DepthMode:       cfg.DepthMode.String(),
		FPS:             cfg.FPS.String(),
		SyncRole:        cfg.SyncRole.String(),
		SyncDelayUsec:   cfg.SyncDelayUsec,
	}
}

// ImageRecord is a persisted sub-image, byte for byte as acquired.
type ImageRecord struct {
	Format string `msgpack:"format"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Stride int    `msgpack:"stride"`
	Data   []byte `msgpack:"data"`
}

// Record is one persisted capture.
type Record struct {
	Seq           uint64       `msgpack:"seq"`
	TimestampUsec int64        `msgpack:"ts_usec"`
	Color         *ImageRecord `msgpack:"color,omitempty"`
	IR            *ImageRecord `msgpack:"ir,omitempty"`
	Depth         *ImageRecord `msgpack:"depth,omitempty"`
}

func imageRecord(img *device.Image) *ImageRecord {
	if img == nil {
		return nil
	}
	return &ImageRecord{
		Format: img.Format.String(),
		Width:  img.Width,
		Height: img.Height,
		Stride: img.RowStride(),
		Data:   img.Data,
	}
}

// Writer is a Sink writing the container format to a file. It is safe for
// concurrent use.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	zw      *zstd.Encoder
	header  Header
	started bool
	closed  bool
	records uint64
}

// Create opens path for writing. The header is written by WriteHeader.
func Create(path string, h Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	return &Writer{file: f, path: path, zw: zw, header: h}, nil
}

// Path returns the file the writer was created at.
func (w *Writer) Path() string { return w.path }

// WriteHeader implements Sink. Calling it twice is a no-op.
func (w *Writer) WriteHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.started {
		return nil
	}
	if err := w.writeFrame(kindHeader, &w.header); err != nil {
		return err
	}
	w.started = true
	return nil
}

// WriteCapture implements Sink.
func (w *Writer) WriteCapture(c *device.Capture) error {
	rec := Record{
		Seq:           c.Seq,
		TimestampUsec: c.Timestamp.Microseconds(),
		Color:         imageRecord(c.Color),
		IR:            imageRecord(c.IR),
		Depth:         imageRecord(c.Depth),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.closed:
		return ErrClosed
	case !w.started:
		return ErrNoHeader
	}
	if err := w.writeFrame(kindCapture, &rec); err != nil {
		return err
	}
	w.records++
	return nil
}

// Records returns the number of captures written.
func (w *Writer) Records() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Close flushes the compressor and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Join(w.zw.Close(), w.file.Close())
}

func (w *Writer) writeFrame(kind byte, v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	var prefix [5]byte
	prefix[0] = kind
	binary.BigEndian.PutUint32(prefix[1:], uint32(len(body)))
	if _, err := w.zw.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if _, err := w.zw.Write(body); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Reader reads a container written by Writer.
type Reader struct {
	file   *os.File
	zr     *zstd.Decoder
	br     *bufio.Reader
	header Header
}

// Open opens a recording and reads its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to open decompressor: %w", err)
	}
	r := &Reader{file: f, zr: zr, br: bufio.NewReader(zr)}

	kind, body, err := r.readFrame()
	if err == nil && kind != kindHeader {
		err = ErrBadContainer
	}
	if err == nil {
		err = msgpack.Unmarshal(body, &r.header)
	}
	if err == nil && r.header.Magic != magic {
		err = ErrBadContainer
	}
	if err != nil {
		r.Close()
		if !errors.Is(err, ErrBadContainer) {
			err = fmt.Errorf("%w: %w", ErrBadContainer, err)
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	return r, nil
}

// Header returns the recording header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next capture record, or io.EOF at the end.
func (r *Reader) Next() (*Record, error) {
	kind, body, err := r.readFrame()
	if err != nil {
		return nil, err
	}
	if kind != kindCapture {
		return nil, fmt.Errorf("%w: unexpected frame kind %q", ErrBadContainer, kind)
	}
	var rec Record
	if err := msgpack.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

// Close releases the file.
func (r *Reader) Close() {
	r.zr.Close()
	_ = r.file.Close()
}

func (r *Reader) readFrame() (byte, []byte, error) {
	var prefix [5]byte
	if _, err := io.ReadFull(r.br, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, fmt.Errorf("%w: truncated frame", ErrBadContainer)
		}
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(prefix[1:])
	if n > maxFrameSize {
		return 0, nil, fmt.Errorf("%w: frame of %d bytes", ErrBadContainer, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return 0, nil, fmt.Errorf("%w: truncated frame", ErrBadContainer)
	}
	return prefix[0], body, nil
}
