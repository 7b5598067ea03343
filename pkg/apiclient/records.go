package apiclient

import (
	"net/url"
	"strconv"
	"time"

	"github.com/hydronet-io/hydrogate/pkg/store"
)

// RecordQuery scopes ListRecords.
type RecordQuery struct {
	DeviceID string
	LinkID   string
	Since    time.Time
	Until    time.Time
	Limit    int
}

// ListRecords returns telemetry records newest-first.
func (c *Client) ListRecords(q RecordQuery) ([]*store.TelemetryRecord, error) {
	params := url.Values{}
	if q.DeviceID != "" {
		params.Set("device_id", q.DeviceID)
	}
	if q.LinkID != "" {
		params.Set("link_id", q.LinkID)
	}
	if !q.Since.IsZero() {
		params.Set("since", q.Since.Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		params.Set("until", q.Until.Format(time.RFC3339))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/api/v1/records"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var records []*store.TelemetryRecord
	if err := c.get(path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetRecord returns one record by id.
func (c *Client) GetRecord(id uint) (*store.TelemetryRecord, error) {
	var rec store.TelemetryRecord
	if err := c.get("/api/v1/records/"+strconv.FormatUint(uint64(id), 10), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
