package api

import (
	"bytes"
	"context"
	"image/png"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/depthrig/internal/api/models"
	"github.com/smazurov/depthrig/internal/capture"
	"github.com/smazurov/depthrig/internal/display"
	"github.com/smazurov/depthrig/internal/frame"
)

func (s *Server) registerStreamingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "start-streaming",
		Method:      http.MethodPost,
		Path:        "/api/streaming/start",
		Summary:     "Start Streaming",
		Description: "Open and start every enabled device in sync role order",
		Tags:        []string{"streaming"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 500, 502},
	}, func(ctx context.Context, input *struct{}) (*models.StreamingResponse, error) {
		if err := s.session.StartStreaming(); err != nil {
			return nil, toHTTPError(err)
		}
		return &models.StreamingResponse{
			Body: models.StreamingData{
				Streaming: true,
				SessionID: s.session.Snapshot().SessionID,
				Message:   "Streaming started",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-streaming",
		Method:      http.MethodPost,
		Path:        "/api/streaming/stop",
		Summary:     "Stop Streaming",
		Description: "Stop every device, finish queued jobs and close recordings",
		Tags:        []string{"streaming"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(ctx context.Context, input *struct{}) (*models.StreamingResponse, error) {
		if err := s.session.StopStreaming(); err != nil {
			return nil, toHTTPError(err)
		}
		return &models.StreamingResponse{
			Body: models.StreamingData{
				Streaming: false,
				Message:   "Streaming stopped",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "trigger-save-all",
		Method:      http.MethodPost,
		Path:        "/api/recording/trigger",
		Summary:     "Save Next Captures",
		Description: "Save the next capture of every recording device",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409},
	}, func(ctx context.Context, input *struct{}) (*models.TriggerResponse, error) {
		if err := s.session.TriggerSaveAll(); err != nil {
			return nil, toHTTPError(err)
		}
		var serials []string
		for _, d := range s.session.Snapshot().Devices {
			if d.SaveArmed {
				serials = append(serials, d.Descriptor.Serial)
			}
		}
		return &models.TriggerResponse{Body: models.TriggerData{Serials: serials}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "trigger-save-device",
		Method:      http.MethodPost,
		Path:        "/api/devices/{serial}/trigger",
		Summary:     "Save Next Capture",
		Description: "Save the next capture of one device",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409},
	}, func(ctx context.Context, input *DeviceSerialInput) (*models.TriggerResponse, error) {
		if err := s.session.TriggerSave(input.Serial); err != nil {
			return nil, toHTTPError(err)
		}
		return &models.TriggerResponse{Body: models.TriggerData{Serials: []string{input.Serial}}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/snapshot",
		Summary:     "Snapshot",
		Description: "Presentation state of every device and the worker pool",
		Tags:        []string{"streaming"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.SnapshotResponse, error) {
		return &models.SnapshotResponse{Body: snapshotToData(s.session.Snapshot())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-frame",
		Method:      http.MethodGet,
		Path:        "/api/devices/{serial}/frames/{stream}",
		Summary:     "Latest Frame",
		Description: "PNG of the frame currently presented for a display stream",
		Tags:        []string{"streaming"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 422},
	}, func(ctx context.Context, input *DeviceStreamInput) (*models.FrameResponse, error) {
		stream, err := display.ParseStream(input.Stream)
		if err != nil {
			return nil, toHTTPError(err)
		}
		latest, err := s.session.Latest(input.Serial, stream)
		if err != nil {
			return nil, toHTTPError(err)
		}
		buf, ok := latest.Get()
		if !ok {
			return nil, huma.Error404NotFound("no frame presented yet")
		}

		var out bytes.Buffer
		if err := png.Encode(&out, buf.Image()); err != nil {
			return nil, huma.Error500InternalServerError("failed to encode frame", err)
		}
		return &models.FrameResponse{
			ContentType:  "image/png",
			CacheControl: "no-store",
			Body:         out.Bytes(),
		}, nil
	})
}

func frameInfo(latest frame.Latest, flipped bool) models.FrameInfo {
	info := models.FrameInfo{Flipped: flipped}
	if buf, ok := latest.Get(); ok {
		info.Available = true
		info.Width = buf.Width()
		info.Height = buf.Height()
	}
	return info
}

func snapshotToData(snap capture.Snapshot) models.SnapshotData {
	data := models.SnapshotData{
		Streaming:  snap.Streaming,
		SessionID:  snap.SessionID,
		Devices:    make([]models.DeviceSnapshot, 0, len(snap.Devices)),
		Workers:    snap.Workers,
		Running:    snap.Running,
		Queued:     snap.Queued,
		TickRate:   snap.TickRate,
		RecordDir:  snap.RecordDir,
		Continuous: snap.Continuous,
	}
	for _, d := range snap.Devices {
		data.Devices = append(data.Devices, models.DeviceSnapshot{
			Device:    models.DeviceToData(d.Descriptor),
			Active:    d.Active,
			Recording: d.Recording,
			SaveArmed: d.SaveArmed,
			Color:     frameInfo(d.Color, d.FlipColor),
			IR:        frameInfo(d.IR, d.FlipIR),
		})
	}
	return data
}
