package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/depthrig/internal/api/models"
	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/display"
	"github.com/smazurov/depthrig/internal/store"
)

// DeviceSerialInput selects a device by serial number.
type DeviceSerialInput struct {
	Serial string `path:"serial" example:"000123412312" doc:"Device serial number"`
}

// DeviceUpdateInput combines the device serial and the fields to change.
type DeviceUpdateInput struct {
	DeviceSerialInput
	Body models.DeviceUpdateBody
}

// DeviceStreamInput selects one display stream of a device.
type DeviceStreamInput struct {
	DeviceSerialInput
	Stream string `path:"stream" enum:"color,ir" example:"color" doc:"Display stream"`
}

// FlipInput sets the mirroring of one display stream.
type FlipInput struct {
	DeviceStreamInput
	Body models.FlipBody
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List present devices with their settings",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceListResponse, error) {
		descs := s.session.Devices()
		data := make([]models.DeviceData, len(descs))
		for i, d := range descs {
			data[i] = models.DeviceToData(d)
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{
				Devices:          data,
				Count:            len(data),
				IdenticalConfigs: s.session.Registry().Identical(),
				Streaming:        s.session.Streaming(),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-device",
		Method:      http.MethodGet,
		Path:        "/api/devices/{serial}",
		Summary:     "Get Device",
		Description: "Get the settings of one device",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(ctx context.Context, input *DeviceSerialInput) (*models.DeviceResponse, error) {
		d, err := s.session.Registry().Get(input.Serial)
		if err != nil {
			return nil, toHTTPError(err)
		}
		return &models.DeviceResponse{Body: models.DeviceToData(d)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-device",
		Method:      http.MethodPatch,
		Path:        "/api/devices/{serial}",
		Summary:     "Update Device",
		Description: "Change the nickname, enabled flag or configuration of a device. Only allowed while idle.",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409, 422},
	}, func(ctx context.Context, input *DeviceUpdateInput) (*models.DeviceResponse, error) {
		current, err := s.session.Registry().Get(input.Serial)
		if err != nil {
			return nil, toHTTPError(err)
		}

		cfg := current.Config
		if patch := input.Body.Config; patch != nil {
			if cfg, err = configFromPatch(current.Config, patch); err != nil {
				return nil, toHTTPError(err)
			}
		}

		body := input.Body
		err = s.session.UpdateDevice(input.Serial, func(d *device.Descriptor) {
			if body.Nickname != nil {
				d.Nickname = *body.Nickname
			}
			if body.Enabled != nil {
				d.Enabled = *body.Enabled
			}
			d.Config = cfg
		})
		if err != nil {
			return nil, toHTTPError(err)
		}
		s.persistRig()

		updated, err := s.session.Registry().Get(input.Serial)
		if err != nil {
			return nil, toHTTPError(err)
		}
		s.logger.Info("Device updated", "serial", input.Serial, "name", updated.Name())
		return &models.DeviceResponse{Body: models.DeviceToData(updated)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-flip",
		Method:      http.MethodPut,
		Path:        "/api/devices/{serial}/flip/{stream}",
		Summary:     "Set Flip",
		Description: "Mirror a display stream horizontally",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 422},
	}, func(ctx context.Context, input *FlipInput) (*models.FlipResponse, error) {
		stream, err := display.ParseStream(input.Stream)
		if err != nil {
			return nil, toHTTPError(err)
		}
		if err := s.session.SetFlip(input.Serial, stream, input.Body.Flipped); err != nil {
			return nil, toHTTPError(err)
		}
		return &models.FlipResponse{
			Body: models.FlipData{
				Serial:  input.Serial,
				Stream:  stream.String(),
				Flipped: s.session.Flip(input.Serial, stream),
			},
		}, nil
	})
}

// configFromPatch decodes the named fields of patch on top of base.
func configFromPatch(base device.Config, patch *models.DeviceConfigPatch) (device.Config, error) {
	entry := store.DeviceEntry{
		ColorFormat:     string(patch.ColorFormat),
		ColorResolution: string(patch.ColorResolution),
		DepthMode:       string(patch.DepthMode),
		FPS:             patch.FPS,
		SyncMode:        string(patch.SyncRole),
	}
	cfg, err := entry.Config(base)
	if err != nil {
		return cfg, err
	}
	if patch.SyncDelayUsec != nil {
		cfg.SyncDelayUsec = *patch.SyncDelayUsec
	}
	return cfg, nil
}
