package apiclient

import (
	"github.com/hydronet-io/hydrogate/pkg/link"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

// LinkRequest is the create/update payload for links.
type LinkRequest struct {
	Name    string `json:"name,omitempty"`
	Mode    string `json:"mode,omitempty"`
	IP      string `json:"ip,omitempty"`
	Port    int    `json:"port,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// CreateLink creates a link and returns it.
func (c *Client) CreateLink(req LinkRequest) (*store.Link, error) {
	var l store.Link
	if err := c.post("/api/v1/links", req, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLinks returns every configured link.
func (c *Client) ListLinks() ([]*store.Link, error) {
	var links []*store.Link
	if err := c.get("/api/v1/links", &links); err != nil {
		return nil, err
	}
	return links, nil
}

// GetLink returns one link by id.
func (c *Client) GetLink(id string) (*store.Link, error) {
	var l store.Link
	if err := c.get("/api/v1/links/"+id, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// UpdateLink applies a partial update and returns the stored link.
func (c *Client) UpdateLink(id string, req LinkRequest) (*store.Link, error) {
	var l store.Link
	if err := c.put("/api/v1/links/"+id, req, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// DeleteLink deletes a link.
func (c *Client) DeleteLink(id string) error {
	return c.delete("/api/v1/links/" + id)
}

// LinkStatus returns the runtime status of one link.
func (c *Client) LinkStatus(id string) (*link.Status, error) {
	var status link.Status
	if err := c.get("/api/v1/links/"+id+"/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AllLinkStatus returns the runtime status of every link.
func (c *Client) AllLinkStatus() ([]*link.Status, error) {
	var statuses []*link.Status
	if err := c.get("/api/v1/links/status", &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}
