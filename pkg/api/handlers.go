package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/gateway"
	"github.com/hydronet-io/hydrogate/pkg/link"
	"github.com/hydronet-io/hydrogate/pkg/store"
)

// Handlers implements the HTTP surface over the store, the
// configuration service and the gateway pipeline.
type Handlers struct {
	store   *store.Store
	service *gateway.Service
	gw      *gateway.Gateway
}

// NewHandlers creates the handler set.
func NewHandlers(st *store.Store, svc *gateway.Service, gw *gateway.Gateway) *Handlers {
	return &Handlers{store: st, service: svc, gw: gw}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, store.ErrLinkNotFound),
		errors.Is(err, store.ErrDeviceNotFound),
		errors.Is(err, store.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateEndpoint),
		errors.Is(err, store.ErrDuplicateDevice),
		errors.Is(err, store.ErrLinkInUse):
		status = http.StatusConflict
	case errors.Is(err, sl651.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, gateway.ErrDeviceOffline):
		status = http.StatusConflict
	case errors.Is(err, link.ErrLinkNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}
	JSON(w, status, ErrorResponse(err.Error()))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// Healthz is the liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthyResponse(nil))
}

// linkRequest is the create/update payload for links.
type linkRequest struct {
	Name    string `json:"name"`
	Mode    string `json:"mode"`
	IP      string `json:"ip"`
	Port    int    `json:"port"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// CreateLink handles POST /api/v1/links.
func (h *Handlers) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l := &store.Link{
		Name:    req.Name,
		Mode:    req.Mode,
		IP:      req.IP,
		Port:    req.Port,
		Enabled: req.Enabled == nil || *req.Enabled,
	}
	id, err := h.service.CreateLink(r.Context(), l)
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := h.store.GetLink(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusCreated, OKResponse(created))
}

// ListLinks handles GET /api/v1/links.
func (h *Handlers) ListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.store.ListLinks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(links))
}

// GetLink handles GET /api/v1/links/{id}.
func (h *Handlers) GetLink(w http.ResponseWriter, r *http.Request) {
	l, err := h.store.GetLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(l))
}

// UpdateLink handles PUT /api/v1/links/{id}.
func (h *Handlers) UpdateLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	current, err := h.store.GetLink(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req linkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name != "" {
		current.Name = req.Name
	}
	if req.IP != "" {
		current.IP = req.IP
	}
	if req.Port != 0 {
		current.Port = req.Port
	}
	if req.Enabled != nil {
		current.Enabled = *req.Enabled
	}

	if err := h.service.UpdateLink(r.Context(), current); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.store.GetLink(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(updated))
}

// DeleteLink handles DELETE /api/v1/links/{id}.
func (h *Handlers) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteLink(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(nil))
}

// LinkStatus handles GET /api/v1/links/{id}/status.
func (h *Handlers) LinkStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.gw.Manager().GetStatus(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(status))
}

// AllLinkStatus handles GET /api/v1/links/status.
func (h *Handlers) AllLinkStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(h.gw.Manager().GetAllStatus()))
}

// deviceRequest is the create/update payload for devices.
type deviceRequest struct {
	Code     string `json:"code"`
	LinkID   string `json:"link_id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Password string `json:"password"`
	Config   string `json:"config"`
}

// CreateDevice handles POST /api/v1/devices.
func (h *Handlers) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	d := &store.Device{
		Code:     req.Code,
		LinkID:   req.LinkID,
		Name:     req.Name,
		Timezone: req.Timezone,
		Password: req.Password,
		Config:   req.Config,
	}
	id, err := h.service.CreateDevice(r.Context(), d)
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := h.store.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusCreated, OKResponse(created))
}

// ListDevices handles GET /api/v1/devices with an optional link_id
// query parameter.
func (h *Handlers) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.ListDevices(r.Context(), r.URL.Query().Get("link_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(devices))
}

// GetDevice handles GET /api/v1/devices/{id}.
func (h *Handlers) GetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(d))
}

// UpdateDevice handles PUT /api/v1/devices/{id}.
func (h *Handlers) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	current, err := h.store.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req deviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code != "" {
		current.Code = req.Code
	}
	if req.Name != "" {
		current.Name = req.Name
	}
	if req.Timezone != "" {
		current.Timezone = req.Timezone
	}
	if req.Password != "" {
		current.Password = req.Password
	}
	if req.Config != "" {
		current.Config = req.Config
	}

	if err := h.service.UpdateDevice(r.Context(), current); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.store.GetDevice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(updated))
}

// DeleteDevice handles DELETE /api/v1/devices/{id}.
func (h *Handlers) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteDevice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(nil))
}

// commandRequest is the payload for device commands.
type commandRequest struct {
	FuncCode string                 `json:"func_code"`
	Elements []sl651.CommandElement `json:"elements,omitempty"`
}

// SendCommand handles POST /api/v1/devices/{id}/command.
func (h *Handlers) SendCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.gw.SendCommand(r.Context(), gateway.CommandInput{
		DeviceID: chi.URLParam(r, "id"),
		FuncCode: req.FuncCode,
		Elements: req.Elements,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusAccepted, OKResponse(nil))
}

// statsResponse aggregates protocol and transport counters.
type statsResponse struct {
	Parser       sl651.StatsSnapshot `json:"parser"`
	SessionsOpen int                 `json:"sessions_open"`
	TCP          link.TCPStats       `json:"tcp"`
}

// Stats handles GET /api/v1/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(statsResponse{
		Parser:       h.gw.ParserStats().Snapshot(),
		SessionsOpen: h.gw.SessionCount(),
		TCP:          h.gw.Manager().GetTCPStats(),
	}))
}

// ListRecords handles GET /api/v1/records with device_id, link_id,
// since, until (RFC3339) and limit query parameters.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RecordFilter{
		DeviceID: q.Get("device_id"),
		LinkID:   q.Get("link_id"),
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			JSON(w, http.StatusBadRequest, ErrorResponse("invalid since: "+err.Error()))
			return
		}
		filter.Since = ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			JSON(w, http.StatusBadRequest, ErrorResponse("invalid until: "+err.Error()))
			return
		}
		filter.Until = ts
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			JSON(w, http.StatusBadRequest, ErrorResponse("invalid limit"))
			return
		}
		filter.Limit = n
	}

	records, err := h.store.ListRecords(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(records))
}

// GetRecord handles GET /api/v1/records/{id}.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("invalid record id"))
		return
	}
	rec, err := h.store.GetRecord(r.Context(), uint(id))
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(rec))
}
