package apiclient

import (
	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

// DeviceRequest is the create/update payload for devices.
type DeviceRequest struct {
	Code     string `json:"code,omitempty"`
	LinkID   string `json:"link_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Password string `json:"password,omitempty"`
	Config   string `json:"config,omitempty"`
}

// CreateDevice registers a device and returns it.
func (c *Client) CreateDevice(req DeviceRequest) (*store.Device, error) {
	var d store.Device
	if err := c.post("/api/v1/devices", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDevices returns devices, optionally scoped to one link.
func (c *Client) ListDevices(linkID string) ([]*store.Device, error) {
	path := "/api/v1/devices"
	if linkID != "" {
		path += "?link_id=" + linkID
	}
	var devices []*store.Device
	if err := c.get(path, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// GetDevice returns one device by id.
func (c *Client) GetDevice(id string) (*store.Device, error) {
	var d store.Device
	if err := c.get("/api/v1/devices/"+id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDevice applies a partial update and returns the stored device.
func (c *Client) UpdateDevice(id string, req DeviceRequest) (*store.Device, error) {
	var d store.Device
	if err := c.put("/api/v1/devices/"+id, req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDevice removes a device.
func (c *Client) DeleteDevice(id string) error {
	return c.delete("/api/v1/devices/" + id)
}

// CommandRequest is the payload for downlink commands.
type CommandRequest struct {
	FuncCode string                 `json:"func_code"`
	Elements []sl651.CommandElement `json:"elements,omitempty"`
}

// SendCommand asks the gateway to send a downlink command to a device.
func (c *Client) SendCommand(deviceID string, req CommandRequest) error {
	return c.post("/api/v1/devices/"+deviceID+"/command", req, nil)
}
