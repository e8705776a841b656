package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the database probe in the health handler.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - the caller must be
			// logged in to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Receiver endpoints
			r.Route("/avr", func(r chi.Router) {
				r.Get("/status", s.handleStatus)
				r.Post("/connect", s.handleConnect)
				r.Post("/disconnect", s.handleDisconnect)
				r.Get("/state", s.handleGetState)
				r.Get("/history", s.handleGetHistory)

				r.Route("/commands", func(r chi.Router) {
					r.Get("/", s.handleListCommands)
					r.Post("/{name}", s.handleNamedCommand)
				})

				// Raw protocol commands, validated before sending
				r.Post("/command", s.handleRawCommand)
			})
		})

		// WebSocket upgrade. Browser WebSocket clients cannot send an
		// Authorization header, so the upgrade authenticates with a
		// single-use ticket issued by POST /auth/ws-ticket instead of
		// the JWT middleware.
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status, including the database
// probe when a database is configured.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"version":   s.version,
		"connected": s.controller.IsConnected(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			payload["status"] = "degraded"
			payload["database"] = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, payload)
}
