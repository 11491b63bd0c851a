package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/depthrig/internal/display"
)

func TestDeviceCountersCache(t *testing.T) {
	serial := "test-serial-1"
	DeleteDeviceMetrics(serial)

	if c := GetDeviceCounters(serial); c != nil {
		t.Error("expected nil for unknown device")
	}

	var p Pipeline
	p.CaptureAcquired(serial)
	p.CaptureAcquired(serial)
	p.FrameQueued(serial, display.StreamColor)
	p.FrameQueued(serial, display.StreamIR)
	p.FrameDropped(serial, display.StreamIR)
	p.DecodeFailed(serial)
	p.CaptureSaved(serial)
	p.SaveFailed(serial)

	c := GetDeviceCounters(serial)
	if c == nil {
		t.Fatal("expected counters")
	}
	want := DeviceCounters{Acquired: 2, ColorQueued: 1, IRQueued: 1, Dropped: 1, DecodeFailures: 1, Saved: 1, SaveFailures: 1}
	if *c != want {
		t.Errorf("counters = %+v, want %+v", *c, want)
	}

	if got := testutil.ToFloat64(capturesAcquired.WithLabelValues(serial)); got != 2 {
		t.Errorf("acquired_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(framesDropped.WithLabelValues(serial, "ir")); got != 1 {
		t.Errorf("frames_dropped_total = %v, want 1", got)
	}

	c.Acquired = 99
	if GetDeviceCounters(serial).Acquired != 2 {
		t.Error("cache was modified through returned copy")
	}

	DeleteDeviceMetrics(serial)
	if GetDeviceCounters(serial) != nil {
		t.Error("expected nil after delete")
	}
}

func TestGauges(t *testing.T) {
	var p Pipeline
	p.SetStreaming(true)
	if got := testutil.ToFloat64(streaming); got != 1 {
		t.Errorf("streaming = %v", got)
	}
	p.SetStreaming(false)
	p.SetWorkers(3, 7)
	if testutil.ToFloat64(workersRunning) != 3 || testutil.ToFloat64(workersQueued) != 7 {
		t.Error("worker gauges not set")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	serial := "test-serial-concurrent"
	DeleteDeviceMetrics(serial)
	defer DeleteDeviceMetrics(serial)

	var p Pipeline
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				p.CaptureSaved(serial)
			}
		}()
	}
	wg.Wait()

	if got := GetDeviceCounters(serial).Saved; got != 1000 {
		t.Errorf("Saved = %d, want 1000", got)
	}
}

func TestHandlerServesNamespace(t *testing.T) {
	var p Pipeline
	p.StartFailed()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "depthrig_capture_start_failures_total") {
		t.Error("metrics output missing depthrig_capture_start_failures_total")
	}
}
