package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-01-15T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.25.0" doc:"Go version used to build"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Streaming models
type StreamingData struct {
	Streaming bool   `json:"streaming" example:"true" doc:"Whether a streaming session is active"`
	SessionID string `json:"session_id,omitempty" example:"5f0c2d8e-8a34-4c8f-9e38-0b5b2b7c1e7a" doc:"Active session identifier"`
	Message   string `json:"message" example:"Streaming started" doc:"Status message"`
}

type StreamingResponse struct {
	Body StreamingData
}

// Recording trigger models
type TriggerData struct {
	Serials []string `json:"serials" doc:"Devices whose next capture will be saved"`
}

type TriggerResponse struct {
	Body TriggerData
}

// Snapshot models
type FrameInfo struct {
	Available bool `json:"available" example:"true" doc:"Whether a frame has been presented"`
	Width     int  `json:"width,omitempty" example:"480" doc:"Frame width in pixels"`
	Height    int  `json:"height,omitempty" example:"270" doc:"Frame height in pixels"`
	Flipped   bool `json:"flipped" example:"false" doc:"Whether the stream is mirrored"`
}

type DeviceSnapshot struct {
	Device    DeviceData `json:"device" doc:"Device descriptor"`
	Active    bool       `json:"active" example:"true" doc:"Whether the device is part of the active session"`
	Recording bool       `json:"recording" example:"false" doc:"Whether a recording file is open for the device"`
	SaveArmed bool       `json:"save_armed" example:"false" doc:"Whether the next capture will be saved"`
	Color     FrameInfo  `json:"color" doc:"Latest color frame"`
	IR        FrameInfo  `json:"ir" doc:"Latest IR frame"`
}

type SnapshotData struct {
	Streaming  bool             `json:"streaming" example:"true" doc:"Whether a streaming session is active"`
	SessionID  string           `json:"session_id,omitempty" doc:"Active session identifier"`
	Devices    []DeviceSnapshot `json:"devices" doc:"Per-device presentation state"`
	Workers    int              `json:"workers" example:"4" doc:"Worker pool size"`
	Running    int              `json:"running" example:"1" doc:"Jobs currently executing"`
	Queued     int              `json:"queued" example:"0" doc:"Jobs waiting for a worker"`
	TickRate   float64          `json:"tick_rate" example:"950.5" doc:"Dispatch loop iterations per second"`
	RecordDir  string           `json:"record_dir,omitempty" example:"/var/lib/depthrig" doc:"Recording directory"`
	Continuous bool             `json:"continuous" example:"false" doc:"Whether every capture is recorded"`
}

type SnapshotResponse struct {
	Body SnapshotData
}

// Frame image response
type FrameResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// Log models
type LogEntryData struct {
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"capture" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogListData struct {
	Entries []LogEntryData `json:"entries" doc:"Log entries, oldest first"`
	Count   int            `json:"count" example:"20" doc:"Number of entries returned"`
}

type LogListResponse struct {
	Body LogListData
}
