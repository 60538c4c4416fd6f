package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// Health check (no auth, never touches a strip)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.apiKeyMiddleware)

		r.Route("/power", func(r chi.Router) {
			r.Post("/on/{address}/{outlet}", s.handlePowerOn)
			r.Post("/off/{address}/{outlet}", s.handlePowerOff)
			r.Get("/{address}", s.handleStripStatus)
		})

		r.Get("/audit", s.handleListAudit)
	})

	// WebSocket checks the key itself so browsers can pass it as a query param.
	r.Get("/ws", s.handleWebSocket)

	return r
}

// handleHealth reports liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
