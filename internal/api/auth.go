package api

import (
	"net/http"
	"time"

	"github.com/Kalhara-JA/retail-os/internal/auth"
)

// TokenRequest is the request body for POST /admin/auth/token
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries a signed admin token
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleToken handles POST /api/v1/admin/auth/token
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	admin := s.config.Admin
	if admin.Username == "" || s.config.JWT.Secret == "" {
		sendError(w, http.StatusNotFound, "Admin login is not configured")
		return
	}

	var req TokenRequest
	if err := decodeJSON(r, &req, false); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	creds := auth.Credentials{Username: admin.Username, PasswordHash: admin.PasswordHash}
	if !creds.Verify(req.Username, req.Password) {
		s.logger.Warn("failed admin login", "username", req.Username, "remote_addr", r.RemoteAddr)
		sendError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, expires, err := auth.GenerateToken(s.config.JWT.Secret, admin.Username, s.config.JWT.TTL)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	s.logger.Info("admin token issued", "username", admin.Username, "expires_at", expires)
	sendJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires.UTC(),
	})
}
