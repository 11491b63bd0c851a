package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/depthrig/internal/capture"
	"github.com/smazurov/depthrig/internal/device"
	"github.com/smazurov/depthrig/internal/display"
	"github.com/smazurov/depthrig/internal/genlock"
)

// toHTTPError maps session errors to API status codes.
func toHTTPError(err error) error {
	var startErr *genlock.StartError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, capture.ErrUnknownDevice):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, capture.ErrAlreadyStreaming), errors.Is(err, capture.ErrNotStreaming):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, capture.ErrNoDevices), errors.Is(err, capture.ErrRecordingDisabled):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, device.ErrUnknownEnum), errors.Is(err, display.ErrUnknownStream):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.As(err, &startErr):
		return huma.Error502BadGateway(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
