package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/Kalhara-JA/retail-os/internal/ipfilter"
	"github.com/Kalhara-JA/retail-os/internal/metrics"
	"github.com/Kalhara-JA/retail-os/internal/newsletter"
	"github.com/Kalhara-JA/retail-os/internal/ratelimit"
)

// SubscribeRequest is the request body for POST /newsletter/subscribe
type SubscribeRequest struct {
	Email string `json:"email"`
}

// handleSubscribe handles POST /api/v1/newsletter/subscribe
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ip := r.RemoteAddr
	if parsed := ipfilter.RemoteIP(r); parsed != nil {
		ip = parsed.String()
	}

	if s.deps.Limiter != nil {
		decision := s.deps.Limiter.Allow(r.Context(), ratelimit.Request{IP: ip, Email: req.Email})
		if !decision.Allowed {
			metrics.IncSubscriptions("rate_limited")
			s.logger.Warn("newsletter subscription rate limited", "ip", ip, "scope", decision.Scope)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			sendError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
	}

	outcome, err := s.deps.Newsletter.Subscribe(r.Context(), newsletter.Subscription{
		Email: req.Email,
		IP:    ip,
	})
	if errors.Is(err, newsletter.ErrInvalidEmail) {
		sendError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if err != nil {
		s.logger.Error("newsletter subscription failed", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to subscribe")
		return
	}

	s.logger.Debug("newsletter subscribed", "email", outcome.Email, "mail_sent", outcome.MailSent)
	sendJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "Successfully subscribed to newsletter",
	})
}
