// Package recording persists raw captures. A Sink is bound to one device
// for one streaming session.
package recording

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/depthrig/internal/device"
)

// Extension is the file extension of the container written by Writer.
const Extension = ".dkr"

// Sink receives the unmodified captures of one device.
type Sink interface {
	WriteHeader() error
	WriteCapture(c *device.Capture) error
	Close() error
}

// Factory creates sinks at streaming start.
type Factory interface {
	Create(path string, h device.Handle, cfg device.Config) (Sink, error)
}

// FileName returns "<unix seconds>_<name><ext>". Path separators in name
// are replaced so the file always lands in the recording directory.
func FileName(start time.Time, name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("%d_%s%s", start.Unix(), name, Extension)
}

// maxNameAttempts bounds the suffixes tried when a file name is taken.
const maxNameAttempts = 100

// FileFactory creates Writers tagged with one session ID.
type FileFactory struct {
	SessionID uuid.UUID
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Create implements Factory. The parent directory is created if missing.
// When path exists, "_1", "_2", ... is inserted before the extension, so a
// session restarted within the same second gets its own files.
func (f FileFactory) Create(path string, h device.Handle, cfg device.Config) (Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	header := NewHeader(f.SessionID, h.Serial(), cfg)
	candidate := path
	for n := 1; ; n++ {
		w, err := Create(candidate, header)
		if err == nil {
			if candidate != path {
				f.logger().Debug("Recording name taken, using suffix", "requested", path, "path", candidate)
			}
			return w, nil
		}
		if !errors.Is(err, fs.ErrExist) || n >= maxNameAttempts {
			return nil, err
		}
		candidate = withSuffix(path, n)
	}
}

func (f FileFactory) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func withSuffix(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), n, ext)
}
