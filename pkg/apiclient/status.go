package apiclient

import (
	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/link"
)

// Healthy reports whether the server answers its liveness probe.
func (c *Client) Healthy() bool {
	return c.get("/healthz", nil) == nil
}

// Stats aggregates protocol and transport counters.
type Stats struct {
	Parser       sl651.StatsSnapshot `json:"parser"`
	SessionsOpen int                 `json:"sessions_open"`
	TCP          link.TCPStats       `json:"tcp"`
}

// GetStats returns the gateway's runtime counters.
func (c *Client) GetStats() (*Stats, error) {
	var stats Stats
	if err := c.get("/api/v1/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
