package api

import (
	"errors"
	"net/http"

	"github.com/Kalhara-JA/retail-os/internal/dnscheck"
)

// DKIMResponse describes the DNS record needed for DKIM
type DKIMResponse struct {
	Enabled  bool   `json:"enabled"`
	Domain   string `json:"domain,omitempty"`
	Selector string `json:"selector,omitempty"`
	DNSName  string `json:"dnsName,omitempty"`
	Record   string `json:"record,omitempty"`
}

// handleDKIM handles GET /api/v1/admin/mail/dkim
func (s *Server) handleDKIM(w http.ResponseWriter, r *http.Request) {
	if s.deps.DKIM == nil {
		sendJSON(w, http.StatusOK, DKIMResponse{Enabled: false})
		return
	}

	record, err := s.deps.DKIM.DNSRecord()
	if err != nil {
		s.logger.Error("failed to build DKIM record", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to build DKIM record")
		return
	}

	sendJSON(w, http.StatusOK, DKIMResponse{
		Enabled:  true,
		Domain:   s.deps.DKIM.Domain(),
		Selector: s.deps.DKIM.Selector(),
		DNSName:  s.deps.DKIM.DNSName(),
		Record:   record,
	})
}

// handleDNSCheck handles GET /api/v1/admin/mail/dns.
// ?domain overrides the sending domain.
func (s *Server) handleDNSCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.DNSCheck == nil {
		sendError(w, http.StatusNotFound, "DNS checks are not enabled")
		return
	}

	req := dnscheck.Request{Domain: r.URL.Query().Get("domain")}
	if req.Domain == "" {
		req.Domain = s.deps.MailDomain
	}
	if req.Domain == "" {
		sendError(w, http.StatusBadRequest, "domain is required")
		return
	}

	if s.deps.DKIM != nil && req.Domain == s.deps.DKIM.Domain() {
		req.Selector = s.deps.DKIM.Selector()
		if record, err := s.deps.DKIM.DNSRecord(); err == nil {
			req.Expected = record
		}
	}

	report, err := s.deps.DNSCheck.Check(r.Context(), req)
	if errors.Is(err, dnscheck.ErrInvalidDomain) {
		sendError(w, http.StatusBadRequest, "Invalid domain")
		return
	}
	if err != nil {
		s.logger.Error("dns check failed", "domain", req.Domain, "error", err)
		sendError(w, http.StatusInternalServerError, "DNS check failed")
		return
	}

	sendJSON(w, http.StatusOK, report)
}
