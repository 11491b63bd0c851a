package recording

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/depthrig/internal/device"
)

func testCapture(seq uint64) *device.Capture {
	c := device.NewCapture("000123", seq, nil)
	c.Timestamp = time.Duration(seq) * 33 * time.Millisecond
	c.Color = &device.Image{Format: device.PixelMJPG, Width: 4, Height: 2, Data: []byte{0xff, 0xd8, 1, 2, 3}}
	c.IR = &device.Image{Format: device.PixelIR16, Width: 2, Height: 1, Data: []byte{1, 0, 2, 0}}
	return c
}

func TestFileName(t *testing.T) {
	start := time.Unix(1700000000, 0)
	tests := []struct {
		name string
		want string
	}{
		{"000123", "1700000000_000123.dkr"},
		{"left cam", "1700000000_left cam.dkr"},
		{"../etc", "1700000000_.._etc.dkr"},
	}
	for _, tt := range tests {
		if got := FileName(start, tt.name); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec"+Extension)
	session := uuid.New()
	cfg := device.DefaultConfig()
	cfg.SyncRole = device.RoleMaster

	w, err := Create(path, NewHeader(session, "000123", cfg))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteCapture(testCapture(1)); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	for seq := uint64(1); seq <= 3; seq++ {
		if err := w.WriteCapture(testCapture(seq)); err != nil {
			t.Fatalf("WriteCapture: %v", err)
		}
	}
	if w.Records() != 3 {
		t.Errorf("Records() = %d", w.Records())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.WriteCapture(testCapture(4)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	h := r.Header()
	if h.SessionID != session.String() || h.Serial != "000123" || h.SyncRole != "Master" || h.DepthMode != "NFOV Unbinned" {
		t.Errorf("unexpected header %+v", h)
	}

	var seqs []uint64
	for {
		rec, nextErr := r.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			t.Fatalf("Next: %v", nextErr)
		}
		seqs = append(seqs, rec.Seq)
		if rec.Color == nil || !bytes.Equal(rec.Color.Data, []byte{0xff, 0xd8, 1, 2, 3}) {
			t.Errorf("color payload not preserved: %+v", rec.Color)
		}
		if rec.IR == nil || rec.IR.Stride != 4 || rec.Depth != nil {
			t.Errorf("unexpected IR/depth records: %+v %+v", rec.IR, rec.Depth)
		}
	}
	if len(seqs) != 3 || seqs[2] != 3 {
		t.Errorf("read sequence %v", seqs)
	}
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk"+Extension)
	if err := os.WriteFile(path, []byte("not a recording"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !errors.Is(err, ErrBadContainer) {
		t.Errorf("expected ErrBadContainer, got %v", err)
	}
}

type serialHandle struct{ serial string }

func (h serialHandle) Serial() string                                  { return h.serial }
func (serialHandle) Start(device.Config) error                         { return nil }
func (serialHandle) Stop() error                                       { return nil }
func (serialHandle) TryAcquire(time.Duration) (*device.Capture, error) { return nil, device.ErrTimeout }
func (serialHandle) Close() error                                      { return nil }

func TestFileFactoryCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "recordings")
	path := filepath.Join(dir, FileName(time.Now(), "cam"))

	sink, err := FileFactory{SessionID: uuid.New()}.Create(path, serialHandle{"cam"}, device.DefaultConfig())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sink.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("recording not created: %v", err)
	}
}

func TestFileFactoryAvoidsTakenNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(time.Unix(1700000000, 0), "cam"))
	factory := FileFactory{SessionID: uuid.New()}

	want := []string{
		path,
		filepath.Join(dir, "1700000000_cam_1"+Extension),
		filepath.Join(dir, "1700000000_cam_2"+Extension),
	}
	for _, w := range want {
		sink, err := factory.Create(path, serialHandle{"cam"}, device.DefaultConfig())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		writer, ok := sink.(*Writer)
		if !ok {
			t.Fatalf("sink is %T, want *Writer", sink)
		}
		if writer.Path() != w {
			t.Errorf("path = %s, want %s", writer.Path(), w)
		}
		if err := sink.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFileFactoryReportsOtherErrors(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(blocker, FileName(time.Now(), "cam"))
	if _, err := (FileFactory{}).Create(path, serialHandle{"cam"}, device.DefaultConfig()); err == nil {
		t.Error("expected error when the directory is a file")
	}
}
