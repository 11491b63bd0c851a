// Package metrics provides Prometheus metrics for the capture pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/depthrig/internal/display"
)

const namespace = "depthrig"

var (
	capturesAcquired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "acquired_total",
		Help:      "Captures acquired and submitted for processing",
	}, []string{"serial"})

	framesQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "display",
		Name:      "frames_queued_total",
		Help:      "Display frames pushed to a queue",
	}, []string{"serial", "stream"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "display",
		Name:      "frames_dropped_total",
		Help:      "Display frames dropped because the queue was full",
	}, []string{"serial", "stream"})

	decodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "processing",
		Name:      "decode_failures_total",
		Help:      "Color images that failed to decode",
	}, []string{"serial"})

	capturesSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "captures_saved_total",
		Help:      "Captures written to a recording",
	}, []string{"serial"})

	saveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "save_failures_total",
		Help:      "Captures that failed to be written",
	}, []string{"serial"})

	startFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "start_failures_total",
		Help:      "Streaming start attempts that were rolled back",
	})

	streaming = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "streaming",
		Help:      "1 while devices are streaming",
	})

	workersRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workers",
		Name:      "running",
		Help:      "Processing tasks currently executing",
	})

	workersQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workers",
		Name:      "queued",
		Help:      "Processing tasks waiting for a worker",
	})

	// Local cache for snapshot and SSE access.
	deviceCache   = make(map[string]*DeviceCounters)
	deviceCacheMu sync.RWMutex
)

// DeviceCounters holds the pipeline counters of one device.
type DeviceCounters struct {
	Acquired       uint64 `json:"acquired"`
	ColorQueued    uint64 `json:"color_queued"`
	IRQueued       uint64 `json:"ir_queued"`
	Dropped        uint64 `json:"dropped"`
	DecodeFailures uint64 `json:"decode_failures"`
	Saved          uint64 `json:"saved"`
	SaveFailures   uint64 `json:"save_failures"`
}

// Pipeline records processing outcomes. The zero value is ready to use.
type Pipeline struct{}

// CaptureAcquired counts a capture submitted for processing.
func (Pipeline) CaptureAcquired(serial string) {
	capturesAcquired.WithLabelValues(serial).Inc()
	updateCache(serial, func(c *DeviceCounters) { c.Acquired++ })
}

// FrameQueued counts a display frame pushed to a queue.
func (Pipeline) FrameQueued(serial string, stream display.Stream) {
	framesQueued.WithLabelValues(serial, stream.String()).Inc()
	updateCache(serial, func(c *DeviceCounters) {
		if stream == display.StreamColor {
			c.ColorQueued++
		} else {
			c.IRQueued++
		}
	})
}

// FrameDropped counts a display frame dropped on a full queue.
func (Pipeline) FrameDropped(serial string, stream display.Stream) {
	framesDropped.WithLabelValues(serial, stream.String()).Inc()
	updateCache(serial, func(c *DeviceCounters) { c.Dropped++ })
}

// DecodeFailed counts a color decode failure.
func (Pipeline) DecodeFailed(serial string) {
	decodeFailures.WithLabelValues(serial).Inc()
	updateCache(serial, func(c *DeviceCounters) { c.DecodeFailures++ })
}

// CaptureSaved counts a capture written to a recording.
func (Pipeline) CaptureSaved(serial string) {
	capturesSaved.WithLabelValues(serial).Inc()
	updateCache(serial, func(c *DeviceCounters) { c.Saved++ })
}

// SaveFailed counts a failed recording write.
func (Pipeline) SaveFailed(serial string) {
	saveFailures.WithLabelValues(serial).Inc()
	updateCache(serial, func(c *DeviceCounters) { c.SaveFailures++ })
}

// StartFailed counts a rolled back start attempt.
func (Pipeline) StartFailed() { startFailures.Inc() }

// SetStreaming sets the streaming gauge.
func (Pipeline) SetStreaming(on bool) {
	if on {
		streaming.Set(1)
	} else {
		streaming.Set(0)
	}
}

// SetWorkers sets the worker pool gauges.
func (Pipeline) SetWorkers(running, queued int) {
	workersRunning.Set(float64(running))
	workersQueued.Set(float64(queued))
}

// GetDeviceCounters returns a copy of the counters for serial, or nil.
func GetDeviceCounters(serial string) *DeviceCounters {
	deviceCacheMu.RLock()
	defer deviceCacheMu.RUnlock()
	if c, ok := deviceCache[serial]; ok {
		dup := *c
		return &dup
	}
	return nil
}

// DeleteDeviceMetrics removes all metrics for serial.
func DeleteDeviceMetrics(serial string) {
	capturesAcquired.DeleteLabelValues(serial)
	decodeFailures.DeleteLabelValues(serial)
	capturesSaved.DeleteLabelValues(serial)
	saveFailures.DeleteLabelValues(serial)
	for _, s := range []display.Stream{display.StreamColor, display.StreamIR} {
		framesQueued.DeleteLabelValues(serial, s.String())
		framesDropped.DeleteLabelValues(serial, s.String())
	}

	deviceCacheMu.Lock()
	delete(deviceCache, serial)
	deviceCacheMu.Unlock()
}

// Handler returns the Prometheus metrics HTTP handler.
// This collects all promauto-registered metrics automatically.
func Handler() http.Handler {
	return promhttp.Handler()
}

func updateCache(serial string, update func(*DeviceCounters)) {
	deviceCacheMu.Lock()
	defer deviceCacheMu.Unlock()
	c, ok := deviceCache[serial]
	if !ok {
		c = &DeviceCounters{}
		deviceCache[serial] = c
	}
	update(c)
}
