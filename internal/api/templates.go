package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Kalhara-JA/retail-os/internal/template"
)

// handleTemplatePreview handles POST /api/v1/admin/email-templates/{name}/preview.
// The body holds the variables; date and time default to now.
func (s *Server) handleTemplatePreview(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var vars template.Variables
	if err := decodeJSON(r, &vars, true); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	now := time.Now()
	if vars.Date == "" {
		vars.Date = now.Format("2006-01-02")
	}
	if vars.Time == "" {
		vars.Time = now.Format("15:04:05")
	}

	result, err := s.deps.Templates.Render(r.Context(), name, vars)
	if errors.Is(err, template.ErrTemplateNotFound) {
		sendError(w, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to render template", "name", name, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to render template")
		return
	}

	sendJSON(w, http.StatusOK, result)
}
