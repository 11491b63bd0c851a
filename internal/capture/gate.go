package capture

import "sync/atomic"

// Gate decides whether a device's next capture is persisted.
//
// In continuous mode every capture is persisted. In on-demand mode Trigger
// arms the gate and the next Take consumes it; triggering an armed gate
// does not queue a second save.
type Gate struct {
	continuous bool
	armed      atomic.Bool
}

// NewGate creates a gate in the given mode.
func NewGate(continuous bool) *Gate {
	return &Gate{continuous: continuous}
}

// Continuous reports whether the gate persists every capture.
func (g *Gate) Continuous() bool { return g.continuous }

// Trigger arms the gate for the next capture.
func (g *Gate) Trigger() {
	if !g.continuous {
		g.armed.Store(true)
	}
}

// Armed reports whether the next capture will be persisted.
func (g *Gate) Armed() bool {
	return g.continuous || g.armed.Load()
}

// Take returns the persist flag for a capture being dispatched and
// disarms an on-demand gate.
func (g *Gate) Take() bool {
	if g.continuous {
		return true
	}
	return g.armed.Swap(false)
}
