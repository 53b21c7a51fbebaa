package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tjfontaine/scene-gateway/internal/domain"
	"github.com/tjfontaine/scene-gateway/internal/relay"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req relay.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidRequest(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	AddLogField(r.Context(), "conversation_id", req.ConversationID)

	if req.Stream {
		s.streamChat(w, r, req)
		return
	}

	resp, err := s.chat.Complete(r.Context(), req)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, err)
		return
	}
	AddLogField(r.Context(), "conversation_id", resp.ConversationID)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req relay.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		err := errors.New("streaming not supported")
		AddError(r.Context(), err)
		writeError(w, err)
		return
	}

	sse := &sseWriter{w: w, flusher: flusher}
	err := s.chat.Stream(r.Context(), req, sse.send)
	if err == nil {
		return
	}
	AddError(r.Context(), err)
	if !sse.started {
		writeError(w, err)
	}
}

// sseWriter frames events as "event: <type>" / "data: <json>". Headers are
// deferred to the first event so failures before it can still use an HTTP status.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) send(ev relay.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

type errorBody struct {
	Error *domain.APIError `json:"error"`
}

// writeError maps err to a status: *domain.APIError by its type, deadline
// expiry to 504, anything else to 500.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *domain.APIError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode()
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		apiErr = &domain.APIError{Type: domain.ErrorTypeServer, Message: "request timed out"}
	default:
		apiErr = &domain.APIError{Type: domain.ErrorTypeServer, Message: err.Error()}
	}
	writeJSON(w, status, errorBody{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
