package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/livesync/internal/engine"
	"github.com/rickgao/livesync/internal/state"
	"github.com/rickgao/livesync/internal/version"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string       `json:"status"`
	InstanceID string       `json:"instance_id"`
	ConnID     string       `json:"conn_id,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
	Version    version.Info `json:"version"`
	Stats      engine.Stats `json:"stats"`
}

// newStatusRouter serves health, metrics and read-only views of the
// synchronized data.
func newStatusRouter(e *engine.Engine, reg *prometheus.Registry, metricsPath, instanceID string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler(e, instanceID, logger))
	r.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/debug", func(r chi.Router) {
		r.Get("/entities", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, e.Cache().Snapshot(req.URL.Query().Get("type")), logger)
		})
		r.Get("/entities/{type}/{id}", func(w http.ResponseWriter, req *http.Request) {
			ent, ok := e.Cache().Get(chi.URLParam(req, "type"), chi.URLParam(req, "id"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "entity not found"}, logger)
				return
			}
			writeJSON(w, http.StatusOK, ent, logger)
		})
		r.Get("/pages", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, e.Pages().Snapshot(), logger)
		})
	})

	return r
}

func healthHandler(e *engine.Engine, instanceID string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := e.State()

		resp := HealthResponse{
			Status:     "ok",
			InstanceID: instanceID,
			Version:    version.Get(),
			Stats:      e.Stats(),
		}
		if st.Websocket != nil {
			resp.ConnID = st.Websocket.ID().String()
		}
		if st.LastError != nil {
			resp.LastError = st.LastError.Error()
		}

		code := http.StatusOK
		if st.Status != state.StatusReady {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp, logger)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}
