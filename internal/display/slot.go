package display

import (
	"sync/atomic"

	"github.com/smazurov/depthrig/internal/frame"
)

// Slot is the frame currently presented for one (device, stream). The
// dispatch tick replaces it; any goroutine may read it.
type Slot struct {
	current atomic.Pointer[frame.Buffer]
}

// Present pops at most one buffer from q and makes it current. It reports
// whether the slot changed. When q is empty the previous frame is kept.
func (s *Slot) Present(q *Queue) bool {
	b, ok := q.TryPop()
	if !ok {
		return false
	}
	s.current.Store(b)
	return true
}

// Latest returns the presented frame, if any.
func (s *Slot) Latest() frame.Latest {
	return frame.Some(s.current.Load())
}

// Clear drops the presented frame.
func (s *Slot) Clear() {
	s.current.Store(nil)
}
