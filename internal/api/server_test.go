package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/depthrig/internal/api/models"
	"github.com/smazurov/depthrig/internal/capture"
	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/device/sim"
	"github.com/smazurov/depthrig/internal/display"
	"github.com/smazurov/depthrig/internal/events"
	"github.com/smazurov/depthrig/internal/logging"
	"github.com/smazurov/depthrig/internal/store"
)

type testRig struct {
	session  *capture.Session
	provider *sim.Provider
	bus      *events.Bus
	ts       *httptest.Server
	serials  []string
	user     string
	pass     string
}

func newTestRig(t *testing.T, n int, opts Options) *testRig {
	t.Helper()
	specs := sim.Specs(n)
	provider := sim.New(sim.Options{Devices: specs, Scale: 32, Manual: true})
	bus := events.New()
	session := capture.NewSession(capture.Options{
		Provider: provider,
		Bus:      bus,
		CPUs:     2,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if _, err := session.Rescan(); err != nil {
		t.Fatalf("Rescan() error = %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	opts.Session = session
	opts.EventBus = bus
	server := NewServer(&opts)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	r := &testRig{
		session:  session,
		provider: provider,
		bus:      bus,
		ts:       ts,
		user:     opts.AuthUsername,
		pass:     opts.AuthPassword,
	}
	for _, s := range specs {
		r.serials = append(r.serials, s.Serial)
	}
	return r
}

func (r *testRig) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, r.ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.user != "" {
		req.SetBasicAuth(r.user, r.pass)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func (r *testRig) expect(t *testing.T, method, path string, body any, want int, out any) {
	t.Helper()
	status, data := r.do(t, method, path, body)
	if status != want {
		t.Fatalf("%s %s status = %d, want %d: %s", method, path, status, want, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
}

// present ticks the session until a frame is shown for serial.
func (r *testRig) present(t *testing.T, serial string, stream display.Stream) {
	t.Helper()
	if err := r.provider.Emit(serial); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.session.Tick()
		if latest, err := r.session.Latest(serial, stream); err == nil && latest.Available() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s frame presented for %s", stream, serial)
}

func TestHealthAndVersionSkipAuth(t *testing.T) {
	r := newTestRig(t, 1, Options{AuthUsername: "admin", AuthPassword: "secret"})
	r.user = ""

	var health models.HealthData
	r.expect(t, http.MethodGet, "/api/health", nil, http.StatusOK, &health)
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}

	var ver models.VersionData
	r.expect(t, http.MethodGet, "/api/version", nil, http.StatusOK, &ver)
	if ver.GoVersion == "" || ver.Platform == "" {
		t.Errorf("version = %+v", ver)
	}
}

func TestBasicAuth(t *testing.T) {
	r := newTestRig(t, 1, Options{AuthUsername: "admin", AuthPassword: "secret"})
	good := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	bad := base64.StdEncoding.EncodeToString([]byte("admin:wrong"))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "header", header: "Basic " + good, want: http.StatusOK},
		{name: "wrong password", header: "Basic " + bad, want: http.StatusUnauthorized},
		{name: "bearer", header: "Bearer token", want: http.StatusUnauthorized},
		{name: "query", query: "?auth=" + good, want: http.StatusOK},
		{name: "garbage query", query: "?auth=%25%25", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, r.ts.URL+"/api/devices"+tt.query, nil)
			if err != nil {
				t.Fatal(err)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestListDevices(t *testing.T) {
	r := newTestRig(t, 2, Options{})

	var list models.DeviceListData
	r.expect(t, http.MethodGet, "/api/devices", nil, http.StatusOK, &list)
	if list.Count != 2 || len(list.Devices) != 2 {
		t.Fatalf("count = %d, devices = %d, want 2", list.Count, len(list.Devices))
	}
	d := list.Devices[0]
	if d.Serial != r.serials[0] || d.Name != r.serials[0] || !d.Enabled {
		t.Errorf("device = %+v", d)
	}
	if d.Config.ColorFormat != "MJPG" || d.Config.FPS != 30 || d.Config.SyncRole != "Standalone" {
		t.Errorf("config = %+v", d.Config)
	}
	if list.Streaming {
		t.Error("streaming = true before start")
	}
}

func TestUpdateDevicePersistsRig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rig.toml")
	r := newTestRig(t, 2, Options{RigPath: path})
	if err := r.session.SetIdenticalConfigs(false); err != nil {
		t.Fatal(err)
	}
	serial := r.serials[1]

	body := map[string]any{
		"nickname": "right",
		"enabled":  false,
		"config": map[string]any{
			"fps":             15,
			"sync_role":       "Subordinate",
			"sync_delay_usec": 160,
		},
	}
	var got models.DeviceData
	r.expect(t, http.MethodPatch, "/api/devices/"+serial, body, http.StatusOK, &got)
	if got.Name != "right" || got.Enabled {
		t.Errorf("device = %+v", got)
	}
	if got.Config.FPS != 15 || got.Config.SyncRole != "Subordinate" || got.Config.SyncDelayUsec != 160 {
		t.Errorf("config = %+v", got.Config)
	}
	if got.Config.ColorFormat != "MJPG" {
		t.Errorf("color format = %q, unpatched fields must keep their value", got.Config.ColorFormat)
	}

	rig, err := store.Load(path)
	if err != nil || rig == nil {
		t.Fatalf("Load() = %v, %v", rig, err)
	}
	entry := rig.Devices[serial]
	if entry.Nickname != "right" || entry.Enabled == nil || *entry.Enabled {
		t.Errorf("saved entry = %+v", entry)
	}
	if entry.FPS != 15 || entry.SyncMode != "Subordinate" {
		t.Errorf("saved config = %+v", entry)
	}
}

func TestUpdateDeviceErrors(t *testing.T) {
	r := newTestRig(t, 1, Options{})
	serial := r.serials[0]

	tests := []struct {
		name   string
		serial string
		body   map[string]any
		want   int
	}{
		{name: "unknown device", serial: "999", body: map[string]any{"nickname": "x"}, want: http.StatusNotFound},
		{name: "unknown format", serial: serial, body: map[string]any{"config": map[string]any{"color_format": "H264"}}, want: http.StatusUnprocessableEntity},
		{name: "unsupported fps", serial: serial, body: map[string]any{"config": map[string]any{"fps": 60}}, want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, data := r.do(t, http.MethodPatch, "/api/devices/"+tt.serial, tt.body); status != tt.want {
				t.Errorf("status = %d, want %d: %s", status, tt.want, data)
			}
		})
	}

	r.expect(t, http.MethodPost, "/api/streaming/start", nil, http.StatusOK, nil)
	r.expect(t, http.MethodPatch, "/api/devices/"+serial, map[string]any{"nickname": "late"}, http.StatusConflict, nil)
}

func TestStreamingLifecycle(t *testing.T) {
	r := newTestRig(t, 2, Options{})

	var started models.StreamingData
	r.expect(t, http.MethodPost, "/api/streaming/start", nil, http.StatusOK, &started)
	if !started.Streaming || started.SessionID == "" {
		t.Errorf("start = %+v", started)
	}
	r.expect(t, http.MethodPost, "/api/streaming/start", nil, http.StatusConflict, nil)

	var snap models.SnapshotData
	r.expect(t, http.MethodGet, "/api/snapshot", nil, http.StatusOK, &snap)
	if !snap.Streaming || snap.SessionID != started.SessionID || snap.Workers == 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	for _, d := range snap.Devices {
		if !d.Active {
			t.Errorf("device %s not active", d.Device.Serial)
		}
	}

	r.expect(t, http.MethodPost, "/api/streaming/stop", nil, http.StatusOK, nil)
	r.expect(t, http.MethodPost, "/api/streaming/stop", nil, http.StatusConflict, nil)
	for _, serial := range r.serials {
		if r.provider.Started(serial) {
			t.Errorf("%s still started after stop", serial)
		}
	}
}

func TestStartWithoutEnabledDevices(t *testing.T) {
	r := newTestRig(t, 1, Options{})
	if err := r.session.SetEnabled(r.serials[0], false); err != nil {
		t.Fatal(err)
	}
	r.expect(t, http.MethodPost, "/api/streaming/start", nil, http.StatusBadRequest, nil)
}

func TestStartFailureIsReported(t *testing.T) {
	r := newTestRig(t, 2, Options{})
	r.provider.SetDevices([]sim.Spec{{Serial: r.serials[0]}, {Serial: r.serials[1], FailStart: true}})

	r.expect(t, http.MethodPost, "/api/streaming/start", nil, http.StatusBadGateway, nil)
	if r.session.Streaming() {
		t.Error("session streaming after failed start")
	}
}

func TestRecordingTriggers(t *testing.T) {
	r := newTestRig(t, 2, Options{})
	r.expect(t, http.MethodPost, "/api/recording/trigger", nil, http.StatusConflict, nil)

	r.expect(t, http.MethodPost, "/api/streaming/start", nil, http.StatusOK, nil)
	r.expect(t, http.MethodPost, "/api/recording/trigger", nil, http.StatusBadRequest, nil)
	r.expect(t, http.MethodPost, "/api/streaming/stop", nil, http.StatusOK, nil)

	if err := r.session.SetRecording(t.TempDir(), false); err != nil {
		t.Fatal(err)
	}
	r.expect(t, http.MethodPost, "/api/streaming/start", nil, http.StatusOK, nil)

	var all models.TriggerData
	r.expect(t, http.MethodPost, "/api/recording/trigger", nil, http.StatusOK, &all)
	if len(all.Serials) != 2 {
		t.Errorf("armed = %v, want both devices", all.Serials)
	}

	var one models.TriggerData
	r.expect(t, http.MethodPost, "/api/devices/"+r.serials[1]+"/trigger", nil, http.StatusOK, &one)
	if len(one.Serials) != 1 || one.Serials[0] != r.serials[1] {
		t.Errorf("armed = %v", one.Serials)
	}
	r.expect(t, http.MethodPost, "/api/devices/999/trigger", nil, http.StatusNotFound, nil)
}

func TestFrameEndpoint(t *testing.T) {
	r := newTestRig(t, 1, Options{})
	serial := r.serials[0]

	r.expect(t, http.MethodGet, "/api/devices/"+serial+"/frames/color", nil, http.StatusConflict, nil)
	r.expect(t, http.MethodPost, "/api/streaming/start", nil, http.StatusOK, nil)
	r.expect(t, http.MethodGet, "/api/devices/"+serial+"/frames/color", nil, http.StatusNotFound, nil)

	r.present(t, serial, display.StreamColor)
	status, data := r.do(t, http.MethodGet, "/api/devices/"+serial+"/frames/color", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, data)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	w, h := device.Resolution2160P.Dimensions()
	if got := img.Bounds().Dx(); got != w/32 {
		t.Errorf("width = %d, want %d", got, w/32)
	}
	if got := img.Bounds().Dy(); got != h/32 {
		t.Errorf("height = %d, want %d", got, h/32)
	}

	var snap models.SnapshotData
	r.expect(t, http.MethodGet, "/api/snapshot", nil, http.StatusOK, &snap)
	if c := snap.Devices[0].Color; !c.Available || c.Width != w/32 {
		t.Errorf("color frame = %+v", c)
	}

	r.expect(t, http.MethodGet, "/api/devices/"+serial+"/frames/depth", nil, http.StatusUnprocessableEntity, nil)
}

func TestFlip(t *testing.T) {
	r := newTestRig(t, 1, Options{})
	serial := r.serials[0]

	var got models.FlipData
	r.expect(t, http.MethodPut, "/api/devices/"+serial+"/flip/ir", models.FlipBody{Flipped: true}, http.StatusOK, &got)
	if !got.Flipped || got.Stream != "ir" {
		t.Errorf("flip = %+v", got)
	}
	if !r.session.Flip(serial, display.StreamIR) || r.session.Flip(serial, display.StreamColor) {
		t.Error("only the IR stream should be mirrored")
	}
	r.expect(t, http.MethodPut, "/api/devices/999/flip/color", models.FlipBody{Flipped: true}, http.StatusNotFound, nil)
}

func TestLogsQuery(t *testing.T) {
	logging.Initialize(logging.Config{Level: "debug", Format: "text"})
	r := newTestRig(t, 1, Options{})

	logging.GetLogger(logging.ModuleGenlock).Warn("Subordinate started late", "serial", r.serials[0])
	logging.GetLogger(logging.ModuleGenlock).Debug("Sync jack checked")

	var list models.LogListData
	r.expect(t, http.MethodGet, "/api/logs?module=genlock&level=warn", nil, http.StatusOK, &list)
	if list.Count != 1 || len(list.Entries) != 1 {
		t.Fatalf("entries = %+v, want 1", list.Entries)
	}
	e := list.Entries[0]
	if e.Message != "Subordinate started late" || e.Attributes["serial"] != r.serials[0] {
		t.Errorf("entry = %+v", e)
	}
}

// readEvents collects SSE event names until want is seen or ctx ends.
func readEvents(ctx context.Context, body io.Reader, want string) bool {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return false
		}
		name, ok := strings.CutPrefix(scanner.Text(), "event:")
		if ok && strings.TrimSpace(name) == want {
			return true
		}
	}
	return false
}

func TestEventsStream(t *testing.T) {
	r := newTestRig(t, 1, Options{AuthUsername: "admin", AuthPassword: "secret"})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Headers are only flushed with the first event, so keep publishing
	// until the stream is subscribed.
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.bus.Publish(events.DevicesChangedEvent{Count: 1, Timestamp: time.Now().Format(time.RFC3339)})
			}
		}
	}()

	auth := base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.ts.URL+"/api/events?auth="+auth, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}
	if !readEvents(ctx, resp.Body, "devices-changed") {
		t.Error("devices-changed event not received")
	}
}

func TestMetricsEndpointIsOpen(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	r := newTestRig(t, 1, Options{AuthUsername: "admin", AuthPassword: "secret", PrometheusHandler: handler})
	r.user = ""

	r.expect(t, http.MethodGet, "/metrics", nil, http.StatusOK, nil)
	if !called {
		t.Error("metrics handler not called")
	}
}
