package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubServer answers with the API envelope the real server produces.
func stubServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func writeEnvelope(w http.ResponseWriter, status int, data any, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"data":   data,
		"error":  errMsg,
	})
}

func TestListLinks(t *testing.T) {
	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/links", r.URL.Path)
		writeEnvelope(w, http.StatusOK, []map[string]any{
			{"id": "l1", "name": "uplink", "mode": "TCP Server", "port": 6060},
		}, "")
	})

	links, err := client.ListLinks()
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "uplink", links[0].Name)
	assert.Equal(t, 6060, links[0].Port)
}

func TestCreateLinkSendsBody(t *testing.T) {
	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "uplink", body["name"])
		writeEnvelope(w, http.StatusCreated, map[string]any{"id": "l1", "name": "uplink"}, "")
	})

	l, err := client.CreateLink(LinkRequest{Name: "uplink", Mode: "TCP Server", IP: "0.0.0.0", Port: 6060})
	require.NoError(t, err)
	assert.Equal(t, "l1", l.ID)
}

func TestErrorMapping(t *testing.T) {
	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, nil, "store: link not found")
	})

	_, err := client.GetLink("missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "not found")
}

func TestRecordQueryEncoding(t *testing.T) {
	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "d1", q.Get("device_id"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, "2022-12-29T00:00:00Z", q.Get("since"))
		writeEnvelope(w, http.StatusOK, []any{}, "")
	})

	_, err := client.ListRecords(RecordQuery{
		DeviceID: "d1",
		Since:    time.Date(2022, 12, 29, 0, 0, 0, 0, time.UTC),
		Limit:    5,
	})
	require.NoError(t, err)
}

func TestStats(t *testing.T) {
	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{
			"parser":        map[string]any{"frames_parsed": 7},
			"sessions_open": 2,
			"tcp":           map[string]any{"rx_bytes": 128},
		}, "")
	})

	stats, err := client.GetStats()
	require.NoError(t, err)
	assert.EqualValues(t, 7, stats.Parser.FramesParsed)
	assert.Equal(t, 2, stats.SessionsOpen)
	assert.EqualValues(t, 128, stats.TCP.RxBytes)
}

func TestHealthy(t *testing.T) {
	client := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			writeEnvelope(w, http.StatusOK, nil, "")
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	assert.True(t, client.Healthy())

	down := New("http://127.0.0.1:1")
	assert.False(t, down.Healthy())
}
