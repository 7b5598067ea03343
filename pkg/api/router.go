package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hydronet-io/hydrogate/internal/logger"
	"github.com/hydronet-io/hydrogate/pkg/metrics"
)

// NewRouter creates the chi router with middleware and every route.
//
// Routes:
//   - GET  /healthz - liveness probe
//   - GET  /metrics - Prometheus metrics (404 when metrics are disabled)
//   - POST /api/v1/links - create link
//   - GET  /api/v1/links - list links
//   - GET  /api/v1/links/status - runtime status of every link
//   - GET/PUT/DELETE /api/v1/links/{id} - single link
//   - GET  /api/v1/links/{id}/status - runtime status of one link
//   - POST /api/v1/devices - register device
//   - GET  /api/v1/devices - list devices (?link_id=)
//   - GET/PUT/DELETE /api/v1/devices/{id} - single device
//   - POST /api/v1/devices/{id}/command - build and send a downlink command
//   - GET  /api/v1/records - query telemetry records
//   - GET  /api/v1/records/{id} - single record
//   - GET  /api/v1/stats - parser and transport counters
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Middleware stack, order matters.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/links", func(r chi.Router) {
			r.Post("/", h.CreateLink)
			r.Get("/", h.ListLinks)
			r.Get("/status", h.AllLinkStatus)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetLink)
				r.Put("/", h.UpdateLink)
				r.Delete("/", h.DeleteLink)
				r.Get("/status", h.LinkStatus)
			})
		})

		r.Route("/devices", func(r chi.Router) {
			r.Post("/", h.CreateDevice)
			r.Get("/", h.ListDevices)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetDevice)
				r.Put("/", h.UpdateDevice)
				r.Delete("/", h.DeleteDevice)
				r.Post("/command", h.SendCommand)
			})
		})

		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Get("/{id}", h.GetRecord)
		})

		r.Get("/stats", h.Stats)
	})

	return r
}

// requestLogger logs requests using the internal logger. Health probes
// log at DEBUG to keep steady-state logs quiet.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
