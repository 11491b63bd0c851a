package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/depthrig/internal/events"
)

// sseEventTypes maps SSE event names to their payloads.
var sseEventTypes = map[string]any{
	"streaming-started": events.StreamingStartedEvent{},
	"streaming-stopped": events.StreamingStoppedEvent{},
	"streaming-failed":  events.StreamingFailedEvent{},
	"recording-created": events.RecordingCreatedEvent{},
	"save-triggered":    events.SaveTriggeredEvent{},
	"devices-changed":   events.DevicesChangedEvent{},
	"device-updated":    events.DeviceUpdatedEvent{},
	"device-log":        events.DeviceLogEvent{},
}

func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of session lifecycle, recording, device and backend log events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, sseEventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StreamingStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamingStoppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamingFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingCreatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SaveTriggeredEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DevicesChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceUpdatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceLogEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}
