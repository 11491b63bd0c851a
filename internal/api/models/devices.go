package models

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/depthrig/internal/device"
)

// Enum names accepted in device configuration bodies. Each implements
// huma.SchemaProvider so the OpenAPI document lists the valid values.
type (
	ColorFormatName     string
	ColorResolutionName string
	DepthModeName       string
	SyncRoleName        string
)

func enumSchema(values []string, description string) *huma.Schema {
	enum := make([]any, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &huma.Schema{
		Type:        huma.TypeString,
		Enum:        enum,
		Description: description,
	}
}

func (ColorFormatName) Schema(huma.Registry) *huma.Schema {
	return enumSchema(device.ColorFormats(), "Color image format")
}

func (ColorResolutionName) Schema(huma.Registry) *huma.Schema {
	return enumSchema(device.ColorResolutions(), "Color camera resolution")
}

func (DepthModeName) Schema(huma.Registry) *huma.Schema {
	return enumSchema(device.DepthModes(), "Depth camera mode")
}

func (SyncRoleName) Schema(huma.Registry) *huma.Schema {
	return enumSchema(device.SyncRoles(), "Hardware sync role")
}

// DeviceConfigData is the streaming configuration of a device.
type DeviceConfigData struct {
	ColorFormat     ColorFormatName     `json:"color_format" example:"MJPG"`
	ColorResolution ColorResolutionName `json:"color_resolution" example:"2160p"`
	DepthMode       DepthModeName       `json:"depth_mode" example:"NFOV Unbinned"`
	FPS             int                 `json:"fps" example:"30" enum:"5,15,30" doc:"Frames per second"`
	SyncRole        SyncRoleName        `json:"sync_role" example:"Standalone"`
	SyncDelayUsec   uint32              `json:"sync_delay_usec" example:"0" doc:"Subordinate capture delay in microseconds"`
}

type DeviceData struct {
	Index    int              `json:"index" example:"0" doc:"Enumeration index"`
	Serial   string           `json:"serial" example:"000123412312" doc:"Device serial number"`
	Nickname string           `json:"nickname,omitempty" example:"left" doc:"Operator-assigned name"`
	Name     string           `json:"name" example:"left" doc:"Nickname, or serial when unset"`
	Enabled  bool             `json:"enabled" example:"true" doc:"Whether the device joins the next session"`
	Config   DeviceConfigData `json:"config" doc:"Streaming configuration"`
}

type DeviceListData struct {
	Devices          []DeviceData `json:"devices" doc:"Present devices in enumeration order"`
	Count            int          `json:"count" example:"2" doc:"Number of present devices"`
	IdenticalConfigs bool         `json:"identical_configs" example:"true" doc:"Whether every device uses the first enabled device's configuration"`
	Streaming        bool         `json:"streaming" example:"false" doc:"Whether a streaming session is active"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

type DeviceResponse struct {
	Body DeviceData
}

// DeviceConfigPatch carries the configuration fields to change. Empty
// fields keep their current value.
type DeviceConfigPatch struct {
	ColorFormat     ColorFormatName     `json:"color_format,omitempty" required:"false"`
	ColorResolution ColorResolutionName `json:"color_resolution,omitempty" required:"false"`
	DepthMode       DepthModeName       `json:"depth_mode,omitempty" required:"false"`
	FPS             int                 `json:"fps,omitempty" required:"false" doc:"Frames per second"`
	SyncRole        SyncRoleName        `json:"sync_role,omitempty" required:"false"`
	SyncDelayUsec   *uint32             `json:"sync_delay_usec,omitempty" required:"false" doc:"Subordinate capture delay in microseconds"`
}

type DeviceUpdateBody struct {
	Nickname *string           `json:"nickname,omitempty" required:"false" maxLength:"64" doc:"Operator-assigned name"`
	Enabled  *bool             `json:"enabled,omitempty" required:"false" doc:"Whether the device joins the next session"`
	Config   *DeviceConfigPatch `json:"config,omitempty" required:"false" doc:"Configuration fields to change"`
}

// DeviceToData converts a descriptor to its API representation.
func DeviceToData(d device.Descriptor) DeviceData {
	return DeviceData{
		Index:    d.Index,
		Serial:   d.Serial,
		Nickname: d.Nickname,
		Name:     d.Name(),
		Enabled:  d.Enabled,
		Config: DeviceConfigData{
			ColorFormat:     ColorFormatName(d.Config.ColorFormat.String()),
			ColorResolution: ColorResolutionName(d.Config.ColorResolution.String()),
			DepthMode:       DepthModeName(d.Config.DepthMode.String()),
			FPS:             d.Config.FPS.PerSecond(),
			SyncRole:        SyncRoleName(d.Config.SyncRole.String()),
			SyncDelayUsec:   d.Config.SyncDelayUsec,
		},
	}
}

// Flip models
type FlipBody struct {
	Flipped bool `json:"flipped" example:"true" doc:"Mirror the stream horizontally"`
}

type FlipData struct {
	Serial  string `json:"serial" example:"000123412312" doc:"Device serial number"`
	Stream  string `json:"stream" example:"color" doc:"Display stream"`
	Flipped bool   `json:"flipped" example:"true" doc:"Whether the stream is mirrored"`
}

type FlipResponse struct {
	Body FlipData
}
