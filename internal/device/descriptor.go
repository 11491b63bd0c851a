package device

// Descriptor is the operator-facing record of one physically present device.
type Descriptor struct {
	Index    int    `json:"index"`
	Serial   string `json:"serial"`
	Nickname string `json:"nickname,omitempty"`
	Config   Config `json:"config"`
	Enabled  bool   `json:"enabled"`
}

// Name returns the nickname, falling back to the serial number.
func (d Descriptor) Name() string {
	if d.Nickname != "" {
		return d.Nickname
	}
	return d.Serial
}
