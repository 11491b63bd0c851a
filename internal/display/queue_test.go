package display

import (
	"errors"
	"sync"
	"testing"

	"github.com/smazurov/depthrig/internal/frame"
)

func TestQueueDropsNewestWhenFull(t *testing.T) {
	q := NewQueue(DefaultCapacity)

	pushed := make([]*frame.Buffer, 0, DefaultCapacity)
	for i := 0; i < DefaultCapacity; i++ {
		b := frame.New(frame.LayoutGray, 1, 1)
		b.Bytes()[0] = byte(i)
		if !q.TryPush(b) {
			t.Fatalf("push %d rejected before capacity", i)
		}
		pushed = append(pushed, b)
	}

	overflow := frame.New(frame.LayoutGray, 1, 1)
	if q.TryPush(overflow) {
		t.Fatal("push into full queue should report a drop")
	}
	if q.Len() != DefaultCapacity {
		t.Fatalf("Len = %d, want %d", q.Len(), DefaultCapacity)
	}

	for i, want := range pushed {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("pop %d: queue unexpectedly empty", i)
		}
		if got != want {
			t.Errorf("pop %d returned a different buffer; FIFO order or contents changed", i)
		}
	}

	if _, ok := q.TryPop(); ok {
		t.Error("expected empty queue after draining")
	}
}

func TestQueueCapacityDefault(t *testing.T) {
	if got := NewQueue(0).Cap(); got != DefaultCapacity {
		t.Errorf("Cap = %d, want %d", got, DefaultCapacity)
	}
	if got := NewQueue(5).Cap(); got != 5 {
		t.Errorf("Cap = %d, want 5", got)
	}
}

func TestQueueNeverExceedsCapacityUnderConcurrentProducer(t *testing.T) {
	q := NewQueue(3)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			q.TryPush(frame.New(frame.LayoutGray, 1, 1))
		}
	}()

	for i := 0; i < 1000; i++ {
		if q.Len() > q.Cap() {
			t.Fatalf("Len %d exceeds Cap %d", q.Len(), q.Cap())
		}
		q.TryPop()
	}
	wg.Wait()
}

func TestSlotKeepsPreviousFrameWhenQueueEmpty(t *testing.T) {
	var s Slot
	q := NewQueue(3)

	if s.Present(q) {
		t.Error("Present on empty queue should not change the slot")
	}
	if s.Latest().Available() {
		t.Error("new slot should be empty")
	}

	first := frame.New(frame.LayoutGray, 1, 1)
	q.TryPush(first)
	if !s.Present(q) {
		t.Fatal("Present should take the queued frame")
	}
	if s.Present(q) {
		t.Error("second Present should find the queue empty")
	}
	if got, ok := s.Latest().Get(); !ok || got != first {
		t.Error("slot should keep the previously presented frame")
	}

	second := frame.New(frame.LayoutGray, 1, 1)
	third := frame.New(frame.LayoutGray, 1, 1)
	q.TryPush(second)
	q.TryPush(third)
	s.Present(q)
	if got, _ := s.Latest().Get(); got != second {
		t.Error("Present should consume exactly one frame per call")
	}

	s.Clear()
	if s.Latest().Available() {
		t.Error("Clear should empty the slot")
	}
}

func TestParseStream(t *testing.T) {
	tests := []struct {
		in      string
		want    Stream
		wantErr bool
	}{
		{"color", StreamColor, false},
		{"IR", StreamIR, false},
		{"depth", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseStream(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownStream) {
				t.Errorf("ParseStream(%q) error = %v, want ErrUnknownStream", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseStream(%q) = %v, %v", tt.in, got, err)
		}
		if got.String() != map[Stream]string{StreamColor: "color", StreamIR: "ir"}[got] {
			t.Errorf("String() = %q", got.String())
		}
	}
}

func TestPairQueue(t *testing.T) {
	p := NewPair(2)
	if p.Queue(StreamColor) != p.Color || p.Queue(StreamIR) != p.IR {
		t.Error("Pair.Queue returned the wrong queue")
	}
}
