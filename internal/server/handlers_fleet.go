package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lattice-dev/lattice/internal/fleet"
	"github.com/lattice-dev/lattice/internal/shell"
)

// listProcesses returns the session's current process table.
func (s *Server) listProcesses(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	writeJSON(w, http.StatusOK, s.shellSvc.ListProcesses(sessionID))
}

// terminateProcess requests termination of one background process.
func (s *Server) terminateProcess(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	processID := chi.URLParam(r, "processID")

	_, ledger, err := s.sessions.Get(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	if err := ledger.Terminate(r.Context(), processID); err != nil {
		if errors.Is(err, shell.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		writeError(w, http.StatusConflict, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"terminated": true})
}

// listFleet returns the session's merged task and terminal view.
func (s *Server) listFleet(w http.ResponseWriter, r *http.Request) {
	agents, err := s.fleet.List(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

type killFleetRequest struct {
	Target string `json:"target"`
}

// killFleet terminates one fleet target or the whole fleet.
func (s *Server) killFleet(w http.ResponseWriter, r *http.Request) {
	var req killFleetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "target is required")
		return
	}

	res, err := s.fleet.Kill(r.Context(), chi.URLParam(r, "sessionID"), req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type steerFleetRequest struct {
	Target    string `json:"target"`
	Message   string `json:"message"`
	Interrupt *bool  `json:"interrupt,omitempty"`
}

// steerFleet injects a directive into a terminal-backed fleet target.
func (s *Server) steerFleet(w http.ResponseWriter, r *http.Request) {
	var req steerFleetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "target and message are required")
		return
	}

	interrupt := true
	if req.Interrupt != nil {
		interrupt = *req.Interrupt
	}

	err := s.fleet.Steer(r.Context(), req.Target, req.Message, interrupt)
	switch {
	case errors.Is(err, fleet.ErrTaskNotSteerable):
		writeError(w, http.StatusBadRequest, ErrCodeNotSteerable, err.Error())
	case errors.Is(err, fleet.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"steered": true})
	}
}
