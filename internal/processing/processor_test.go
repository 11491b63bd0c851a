package processing

import (
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/display"
)

type countingSink struct {
	mu     sync.Mutex
	writes int
}

func (s *countingSink) WriteHeader() error { return nil }
func (s *countingSink) Close() error       { return nil }
func (s *countingSink) WriteCapture(*device.Capture) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return nil
}

type countingObserver struct {
	nopObserver
	decodeFailed int
	dropped      int
}

func (o *countingObserver) DecodeFailed(string)                 { o.decodeFailed++ }
func (o *countingObserver) FrameDropped(string, display.Stream) { o.dropped++ }

func newTestProcessor(obs Observer) *Processor {
	return NewProcessor(slog.New(slog.NewTextHandler(io.Discard, nil)), obs)
}

func TestProcessPushesBothStreams(t *testing.T) {
	released := false
	c := device.NewCapture("A", 1, func() { released = true })
	c.Color = jpegImage(t, 8, 4, color.RGBA{R: 255, A: 255})
	c.IR = irImage(8, 4)

	queues := display.NewPair(display.DefaultCapacity)
	newTestProcessor(nil).Process(Job{
		Device:  "A",
		Capture: c,
		Config:  device.DefaultConfig(),
		Queues:  queues,
	})

	if queues.Color.Len() != 1 || queues.IR.Len() != 1 {
		t.Errorf("queue lengths color=%d ir=%d", queues.Color.Len(), queues.IR.Len())
	}
	if !released {
		t.Error("capture not released after processing")
	}
}

func TestRecordingIndependentOfDecode(t *testing.T) {
	tests := []struct {
		name    string
		color   *device.Image
		persist []bool
		want    int
	}{
		{
			name:    "decode fails",
			color:   &device.Image{Format: device.PixelMJPG, Width: 4, Height: 4, Data: []byte{1, 2, 3}},
			persist: []bool{true, false, true, true},
			want:    3,
		},
		{
			name:    "unsupported format",
			color:   &device.Image{Format: device.PixelNV12, Width: 4, Height: 4, Data: make([]byte, 24)},
			persist: []bool{false, true},
			want:    1,
		},
		{
			name:    "no color",
			persist: []bool{true, true},
			want:    2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &countingSink{}
			obs := &countingObserver{}
			p := newTestProcessor(obs)
			queues := display.NewPair(display.DefaultCapacity)

			for i, persist := range tt.persist {
				c := device.NewCapture("A", uint64(i+1), nil)
				c.Color = tt.color
				p.Process(Job{Device: "A", Capture: c, Config: device.DefaultConfig(), Queues: queues, Sink: sink, Persist: persist})
			}
			if sink.writes != tt.want {
				t.Errorf("sink writes = %d, want %d", sink.writes, tt.want)
			}
			if queues.Color.Len() != 0 {
				t.Error("no color frame should be queued")
			}
			if tt.name == "unsupported format" && obs.decodeFailed != 0 {
				t.Error("unsupported format must not count as a decode failure")
			}
		})
	}
}

func TestProcessDropsWhenQueueFull(t *testing.T) {
	obs := &countingObserver{}
	p := newTestProcessor(obs)
	queues := display.NewPair(1)

	for i := 0; i < 3; i++ {
		c := device.NewCapture("A", uint64(i+1), nil)
		c.IR = irImage(2, 2, uint16(i*100))
		p.Process(Job{Device: "A", Capture: c, Config: device.DefaultConfig(), Queues: queues})
	}
	if queues.IR.Len() != 1 {
		t.Fatalf("IR queue length = %d", queues.IR.Len())
	}
	if obs.dropped != 2 {
		t.Errorf("dropped = %d, want 2", obs.dropped)
	}
	first, _ := queues.IR.TryPop()
	if first.Bytes()[0] != 0 {
		t.Error("the oldest frame must be retained when the queue is full")
	}
}

func TestProcessFlipsColor(t *testing.T) {
	img := &device.Image{Format: device.PixelBGRA32, Width: 2, Height: 1, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	c := device.NewCapture("A", 1, nil)
	c.Color = img
	queues := display.NewPair(display.DefaultCapacity)

	newTestProcessor(nil).Process(Job{Capture: c, Config: device.DefaultConfig(), Queues: queues, FlipColor: true})

	buf, ok := queues.Color.TryPop()
	if !ok {
		t.Fatal("no color frame")
	}
	want := []byte{5, 6, 7, 8, 1, 2, 3, 4}
	for i := range want {
		if buf.Bytes()[i] != want[i] {
			t.Fatalf("got %v, want %v", buf.Bytes(), want)
		}
	}
	if img.Data[0] != 1 {
		t.Error("source capture must not be modified")
	}
}
