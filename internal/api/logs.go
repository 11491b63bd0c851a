package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/depthrig/internal/api/models"
	"github.com/smazurov/depthrig/internal/events"
	"github.com/smazurov/depthrig/internal/logging"
)

// LogQueryInput filters buffered log entries.
type LogQueryInput struct {
	Level  string `query:"level" enum:"debug,info,warn,error" required:"false" doc:"Minimum level"`
	Module string `query:"module" required:"false" example:"capture" doc:"Only entries from this module"`
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" default:"200" doc:"Newest entries to return, 0 for all"`
}

func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Buffered log entries, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *LogQueryInput) (*models.LogListResponse, error) {
		data := models.LogListData{Entries: []models.LogEntryData{}}
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, e := range buffer.Query(input.Level, input.Module, input.Limit) {
				data.Entries = append(data.Entries, models.LogEntryData{
					Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
					Level:      e.Level,
					Module:     e.Module,
					Message:    e.Message,
					Attributes: e.Attributes,
				})
			}
		}
		data.Count = len(data.Entries)
		return &models.LogListResponse{Body: data}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends buffered logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		var lastSeq uint64
		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				lastSeq = entry.Seq
				if err := send.Data(logEntryEvent(entry)); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if e, ok := ev.(events.LogEntryEvent); ok && e.Seq <= lastSeq {
					continue
				}
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}

func logEntryEvent(e logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        e.Seq,
		Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
		Level:      e.Level,
		Module:     e.Module,
		Message:    e.Message,
		Attributes: e.Attributes,
	}
}

// ForwardLogs publishes every buffered log entry on bus for the log stream.
func ForwardLogs(bus *events.Bus) {
	logging.SetLogCallback(func(e logging.LogEntry) {
		bus.Publish(logEntryEvent(e))
	})
}
