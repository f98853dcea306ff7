package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Kalhara-JA/retail-os/internal/mailer"
)

// SandboxListResponse lists captured messages
type SandboxListResponse struct {
	Messages []*mailer.Captured `json:"messages"`
	Total    int                `json:"total"`
}

// SandboxMessageResponse is one captured message with its raw MIME data
type SandboxMessageResponse struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	CC         []string  `json:"cc,omitempty"`
	BCC        []string  `json:"bcc,omitempty"`
	Subject    string    `json:"subject"`
	HTML       string    `json:"html,omitempty"`
	Raw        string    `json:"raw"`
	CapturedAt time.Time `json:"captured_at"`
}

// handleSandboxList handles GET /api/v1/admin/mail/sandbox
func (s *Server) handleSandboxList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sandbox == nil {
		sendError(w, http.StatusNotFound, "Sandbox mode is not enabled")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			sendError(w, http.StatusBadRequest, "invalid query parameter: limit")
			return
		}
		limit = min(n, 1000)
	}

	messages, err := s.deps.Sandbox.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list sandbox messages", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []*mailer.Captured{}
	}

	sendJSON(w, http.StatusOK, SandboxListResponse{Messages: messages, Total: len(messages)})
}

// handleSandboxGet handles GET /api/v1/admin/mail/sandbox/{id}
func (s *Server) handleSandboxGet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sandbox == nil {
		sendError(w, http.StatusNotFound, "Sandbox mode is not enabled")
		return
	}

	msg, err := s.deps.Sandbox.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to read sandbox message", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to read message")
		return
	}
	if msg == nil {
		sendError(w, http.StatusNotFound, "Message not found")
		return
	}

	sendJSON(w, http.StatusOK, SandboxMessageResponse{
		ID:         msg.ID,
		From:       msg.From,
		To:         msg.To,
		CC:         msg.CC,
		BCC:        msg.BCC,
		Subject:    msg.Subject,
		HTML:       msg.HTML,
		Raw:        string(msg.Data),
		CapturedAt: msg.CapturedAt,
	})
}

// handleSandboxClear handles DELETE /api/v1/admin/mail/sandbox
func (s *Server) handleSandboxClear(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sandbox == nil {
		sendError(w, http.StatusNotFound, "Sandbox mode is not enabled")
		return
	}

	n, err := s.deps.Sandbox.Clear(r.Context())
	if err != nil {
		s.logger.Error("failed to clear sandbox", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to clear sandbox")
		return
	}

	s.logger.Info("sandbox cleared", "deleted", n, "admin", adminName(r.Context()))
	sendJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
