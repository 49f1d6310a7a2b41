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

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/workspaces/{workspaceID}/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
		})
		r.Get("/workspaces/{workspaceID}/audit", s.handleListAudit)

		r.Route("/rules/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Put("/", s.handleUpdateRule)
			r.Delete("/", s.handleDeleteRule)
			r.Get("/actions", s.handleListActions)
			r.Post("/actions", s.handleAddActions)
			r.Get("/executions", s.handleListExecutions)
		})

		r.Post("/cards/{id}/move", s.handleMoveCard)
		r.Post("/lists/{id}/move", s.handleMoveList)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.broker != nil {
		status["broker_connected"] = s.broker.IsConnected()
	}
	writeJSON(w, http.StatusOK, status)
}
