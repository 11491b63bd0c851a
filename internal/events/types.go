package events

// Event type constants for kelindar/event.
const (
	TypeStreamingStarted uint32 = iota + 1
	TypeStreamingStopped
	TypeStreamingFailed
	TypeRecordingCreated
	TypeSaveTriggered
	TypeDevicesChanged
	TypeDeviceUpdated
	TypeDeviceLog
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamingStartedEvent is published once every device has started.
type StreamingStartedEvent struct {
	SessionID string   `json:"session_id" example:"5f0c2d8e-8a34-4c8f-9e38-0b5b2b7c1e7a" doc:"Streaming session identifier"`
	Devices   []string `json:"devices" doc:"Serial numbers in start order"`
	Recording bool     `json:"recording" doc:"Whether recording sinks were created"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamingStartedEvent.
func (e StreamingStartedEvent) Type() uint32 { return TypeStreamingStarted }

// StreamingStoppedEvent is published after devices and sinks are closed.
type StreamingStoppedEvent struct {
	SessionID string `json:"session_id" doc:"Streaming session identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamingStoppedEvent.
func (e StreamingStoppedEvent) Type() uint32 { return TypeStreamingStopped }

// StreamingFailedEvent is published when a start attempt was rolled back.
type StreamingFailedEvent struct {
	Serial    string `json:"serial,omitempty" example:"000123412312" doc:"Device whose start failed"`
	Error     string `json:"error" doc:"Failure description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamingFailedEvent.
func (e StreamingFailedEvent) Type() uint32 { return TypeStreamingFailed }

// RecordingCreatedEvent is published for each recording file opened.
type RecordingCreatedEvent struct {
	SessionID string `json:"session_id" doc:"Streaming session identifier"`
	Serial    string `json:"serial" example:"000123412312" doc:"Device serial number"`
	Path      string `json:"path" example:"/var/lib/depthrig/1700000000_left.dkr" doc:"Recording file path"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingCreatedEvent.
func (e RecordingCreatedEvent) Type() uint32 { return TypeRecordingCreated }

// SaveTriggeredEvent is published when an on-demand save is armed.
type SaveTriggeredEvent struct {
	Serials   []string `json:"serials" doc:"Devices whose next capture will be saved"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SaveTriggeredEvent.
func (e SaveTriggeredEvent) Type() uint32 { return TypeSaveTriggered }

// DevicesChangedEvent is published when the set of present devices changes.
type DevicesChangedEvent struct {
	Count     int    `json:"count" example:"2" doc:"Number of present devices"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DevicesChangedEvent.
func (e DevicesChangedEvent) Type() uint32 { return TypeDevicesChanged }

// DeviceUpdatedEvent is published when a device's settings change.
type DeviceUpdatedEvent struct {
	Serial    string `json:"serial" example:"000123412312" doc:"Device serial number"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceUpdatedEvent.
func (e DeviceUpdatedEvent) Type() uint32 { return TypeDeviceUpdated }

// DeviceLogEvent carries a diagnostic line from a device backend.
type DeviceLogEvent struct {
	Serial    string `json:"serial,omitempty" example:"000123412312" doc:"Device serial number"`
	Level     string `json:"level" example:"ERROR" doc:"Log level"`
	Message   string `json:"message" doc:"Backend message"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceLogEvent.
func (e DeviceLogEvent) Type() uint32 { return TypeDeviceLog }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
