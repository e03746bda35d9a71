package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/internal/transcript"
	"github.com/lattice-dev/lattice/pkg/types"
)

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	UserMessage      *types.Message `json:"userMessage"`
	AssistantMessage *types.Message `json:"assistantMessage"`
}

// sendMessage appends a user turn and runs the completion to the end,
// returning both messages.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
		return
	}

	runtime, _, err := s.sessions.Get(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	userMsg, stream, err := runtime.SendUserMessage(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeProviderError, err.Error())
		return
	}
	defer stream.Close()

	var content string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, http.StatusBadGateway, ErrCodeProviderError, err.Error())
			return
		}
		content += chunk.Content
	}

	assistantMsg, err := runtime.RecordAssistantMessage(r.Context(), []types.Part{
		&types.TextPart{ID: userMsg.ID + "-reply", Type: "text", Text: content},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	})
}

// getMessages returns the session's full history.
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	runtime, _, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	messages, err := runtime.Messages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type compactRequest struct {
	Trigger string `json:"trigger"`
	Summary string `json:"summary"`
}

// compactSession records a compaction summary as a durable boundary.
func (s *Server) compactSession(w http.ResponseWriter, r *http.Request) {
	var req compactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Summary == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "summary is required")
		return
	}
	if req.Trigger == "" {
		req.Trigger = "user"
	}

	runtime, _, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	msg, err := runtime.Compact(r.Context(), req.Trigger, req.Summary)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// exportTranscript streams the sanitized session history as JSONL.
func (s *Server) exportTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	runtime, _, err := s.sessions.Get(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	messages, err := runtime.Messages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Frozen copy: the export works on values detached from the store.
	frozen := make([]types.Message, len(messages))
	for i, m := range messages {
		frozen[i] = *m
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if err := transcript.WriteJSONL(w, sessionID, frozen, transcript.Options{}); err != nil {
		logging.Error().Err(err).Str("sessionID", sessionID).Msg("transcript export failed")
	}
}

type shareRequest struct {
	ExpiresInSeconds int64 `json:"expiresInSeconds"`
}

// shareSession publishes the session transcript and returns the share token.
func (s *Server) shareSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req shareRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
	}

	info, err := s.shares.Share(sessionID, time.Duration(req.ExpiresInSeconds)*time.Second)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// unshareSession revokes the session's share.
func (s *Server) unshareSession(w http.ResponseWriter, r *http.Request) {
	err := s.shares.Revoke(chi.URLParam(r, "sessionID"))
	if errors.Is(err, transcript.ErrShareNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
