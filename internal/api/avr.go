package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/discoavr-core/internal/avr"
)

// connectRequest is the optional request body for POST /avr/connect.
type connectRequest struct {
	// Retry enables the bounded reconnect backoff. Defaults to true.
	Retry *bool `json:"retry,omitempty"`
}

// commandResponse is the response body for command execution endpoints.
type commandResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
}

// statusResponse is the response body for GET /avr/status.
type statusResponse struct {
	Connected  bool      `json:"connected"`
	LastError  string    `json:"last_error,omitempty"`
	RetryCount int       `json:"retry_count"`
	Stats      avr.Stats `json:"stats"`
}

// handleStatus returns the controller's connection status and counters.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Connected:  s.controller.IsConnected(),
		LastError:  s.controller.LastError(),
		RetryCount: s.controller.RetryCount(),
		Stats:      s.controller.Stats(),
	})
}

// handleConnect establishes the receiver session. Retries with backoff
// unless the request body disables them.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	retry := true

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Retry != nil {
		retry = *req.Retry
	}

	if err := s.controller.Connect(r.Context(), retry); err != nil {
		writeUnavailable(w, "not connected to AVR: "+s.controller.LastError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"connected": true})
}

// handleDisconnect closes the receiver session. Always succeeds.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.controller.Disconnect()
	writeJSON(w, http.StatusOK, map[string]any{"connected": false})
}

// handleGetState returns the current state snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.GetState())
}

// handleListCommands returns the command table for UI construction.
func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": avr.Commands(),
	})
}

// handleNamedCommand executes a command from the static table.
// Table sequences are trusted and bypass free-text validation.
func (s *Server) handleNamedCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	def, ok := avr.LookupCommand(name)
	if !ok {
		writeNotFound(w, "unknown command: "+name)
		return
	}

	resp, err := s.controller.SendAndWait(r.Context(), def.Sequence, commandWait)
	if err != nil {
		writeUnavailable(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{Success: true, Response: resp})
}

// handleRawCommand validates and executes a user-supplied protocol
// string, which may be a newline-separated sequence.
func (s *Server) handleRawCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sequence, err := avr.ValidateSequence(req.Command)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	resp, err := s.controller.SendAndWait(r.Context(), sequence, commandWait)
	if err != nil {
		writeUnavailable(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{Success: true, Response: resp})
}

// handleGetHistory returns recent state change history.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "state history is not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	entries, err := s.history.GetHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeInternalError(w, "failed to query state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
