package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Kalhara-JA/retail-os/internal/auth"
)

type contextKey string

const adminContextKey contextKey = "admin"

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// limitBody caps request bodies at api.max_body_bytes
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.MaxBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware accepts the static API key or a bearer token from /auth/token.
// With neither configured every admin request is refused.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" && s.config.Admin.Username == "" {
			sendError(w, http.StatusServiceUnavailable, "Admin API is not configured")
			return
		}

		credential := r.Header.Get("X-API-Key")
		if h := r.Header.Get("Authorization"); h != "" {
			credential = strings.TrimPrefix(h, "Bearer ")
		}

		if credential != "" && s.config.APIKey != "" &&
			subtle.ConstantTimeCompare([]byte(credential), []byte(s.config.APIKey)) == 1 {
			ctx := context.WithValue(r.Context(), adminContextKey, "api-key")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if credential != "" && s.config.JWT.Secret != "" {
			if claims, err := auth.ValidateToken(s.config.JWT.Secret, credential); err == nil {
				ctx := context.WithValue(r.Context(), adminContextKey, claims.Username)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		s.logger.Warn("unauthorized API request",
			"remote_addr", r.RemoteAddr,
			"path", r.URL.Path,
		)
		sendError(w, http.StatusUnauthorized, "Unauthorized")
	})
}

// adminName returns who authenticated the request, for audit logs
func adminName(ctx context.Context) string {
	name, _ := ctx.Value(adminContextKey).(string)
	return name
}
