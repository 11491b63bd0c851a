package capture

import (
	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/display"
	"github.com/smazurov/depthrig/internal/frame"
)

// DeviceView is the presentation state of one device.
type DeviceView struct {
	Descriptor device.Descriptor
	Active     bool
	Color      frame.Latest
	IR         frame.Latest
	FlipColor  bool
	FlipIR     bool
	Recording  bool
	SaveArmed  bool
}

// Snapshot is the per-tick view exposed to the presentation side.
type Snapshot struct {
	Streaming  bool
	SessionID  string
	Devices    []DeviceView
	Workers    int
	Running    int
	Queued     int
	TickRate   float64
	RecordDir  string
	Continuous bool
}

// Snapshot returns the current view. Devices that are not part of the
// active session have no frames.
func (s *Session) Snapshot() Snapshot {
	descs := s.registry.List()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Streaming:  s.streaming,
		RecordDir:  s.recordDir,
		Continuous: s.continuous,
		TickRate:   s.rate.value(),
	}
	if s.streaming {
		snap.SessionID = s.sessionID.String()
		snap.Workers = s.pool.Size()
		snap.Running = s.pool.Running()
		snap.Queued = s.pool.Queued()
	}

	active := make(map[string]*channel, len(s.channels))
	for _, ch := range s.channels {
		active[ch.desc.Serial] = ch
	}

	for _, d := range descs {
		f := s.flips[d.Serial]
		view := DeviceView{Descriptor: d, FlipColor: f.color, FlipIR: f.ir}
		if ch, ok := active[d.Serial]; ok {
			view.Descriptor = ch.desc
			view.Active = true
			view.Color = ch.color.Latest()
			view.IR = ch.ir.Latest()
			view.Recording = ch.sink != nil
			view.SaveArmed = ch.sink != nil && ch.gate.Armed()
		}
		snap.Devices = append(snap.Devices, view)
	}
	return snap
}

// Latest returns the frame presented for one stream of a device.
func (s *Session) Latest(serial string, stream display.Stream) (frame.Latest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.activeChannel(serial)
	if err != nil {
		return frame.None(), err
	}
	if stream == display.StreamIR {
		return ch.ir.Latest(), nil
	}
	return ch.color.Latest(), nil
}
