package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/nvdisplay-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID, s.accessLog, s.recoverPanics, s.cors, limitBody)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/displays", func(r chi.Router) {
			r.Get("/", s.handleListDisplays)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDisplay)
				r.Get("/attributes/{kind}", s.handleGetAttribute)
				r.With(s.requirePermission(auth.PermDisplayWrite)).
					Put("/attributes/{kind}", s.handleSetAttribute)
			})
		})

		r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"backend": s.service.Backend(),
	})
}

// handleStatus returns the debounced hotplug status with backend and
// cache information.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Info())
}
