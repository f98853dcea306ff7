// Package dnscheck verifies the DNS records a sending domain publishes.
package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

var ErrInvalidDomain = errors.New("invalid domain name")

var (
	domainRegex   = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)
	selectorRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
)

// Check statuses
const (
	StatusOK       = "ok"
	StatusWarning  = "warning"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

// ValidateDomain checks a domain name is well formed
func ValidateDomain(domain string) error {
	if domain == "" || len(domain) > 253 || !domainRegex.MatchString(domain) {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return nil
}

// ValidateSelector checks a DKIM selector is a single DNS label
func ValidateSelector(selector string) error {
	if len(selector) > 63 || !selectorRegex.MatchString(selector) {
		return fmt.Errorf("invalid DKIM selector %q", selector)
	}
	return nil
}

// TXTResolver looks up TXT records. *net.Resolver implements it.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Result is the outcome of one record check
type Result struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// Report lists the checks run for a domain
type Report struct {
	Domain  string   `json:"domain"`
	Results []Result `json:"results"`
	OK      bool     `json:"ok"` // no errors and nothing missing
}

// Request names the domain and, optionally, the DKIM key expected in DNS
type Request struct {
	Domain   string
	Selector string // empty skips the DKIM check
	Expected string // local DKIM record; compared with the published key when set
}

// Checker runs sender DNS checks
type Checker struct {
	resolver TXTResolver
}

// New creates a checker. A nil resolver uses net.DefaultResolver.
func New(r TXTResolver) *Checker {
	if r == nil {
		r = net.DefaultResolver
	}
	return &Checker{resolver: r}
}

// Check looks up SPF, DKIM and DMARC for req.Domain
func (c *Checker) Check(ctx context.Context, req Request) (*Report, error) {
	if err := ValidateDomain(req.Domain); err != nil {
		return nil, err
	}
	if req.Selector != "" {
		if err := ValidateSelector(req.Selector); err != nil {
			return nil, err
		}
	}

	report := &Report{Domain: req.Domain}
	report.Results = append(report.Results, c.checkSPF(ctx, req.Domain))
	if req.Selector != "" {
		report.Results = append(report.Results, c.checkDKIM(ctx, req.Domain, req.Selector, req.Expected))
	}
	report.Results = append(report.Results, c.checkDMARC(ctx, req.Domain))

	report.OK = true
	for _, r := range report.Results {
		if r.Status == StatusError || r.Status == StatusNotFound {
			report.OK = false
		}
	}
	return report, nil
}

// lookup returns the TXT records at name, or a finished Result when there are none
func (c *Checker) lookup(ctx context.Context, typ, name string) ([]string, *Result) {
	records, err := c.resolver.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, &Result{Type: typ, Name: name, Status: StatusNotFound, Message: "no TXT record"}
		}
		return nil, &Result{Type: typ, Name: name, Status: StatusError, Message: fmt.Sprintf("lookup failed: %v", err)}
	}
	if len(records) == 0 {
		return nil, &Result{Type: typ, Name: name, Status: StatusNotFound, Message: "no TXT record"}
	}
	return records, nil
}

func (c *Checker) checkSPF(ctx context.Context, domain string) Result {
	records, res := c.lookup(ctx, "SPF", domain)
	if res != nil {
		return *res
	}

	for _, txt := range records {
		if !strings.HasPrefix(txt, "v=spf1") {
			continue
		}
		result := Result{Type: "SPF", Name: domain, Status: StatusOK, Value: txt}
		switch {
		case strings.Contains(txt, "+all"):
			result.Status = StatusWarning
			result.Message = "+all lets any host send for the domain"
		case strings.Contains(txt, "-all"):
			result.Message = "strict policy"
		case strings.Contains(txt, "~all"):
			result.Message = "soft fail policy"
		}
		return result
	}

	return Result{Type: "SPF", Name: domain, Status: StatusNotFound, Message: "no v=spf1 record"}
}

func (c *Checker) checkDKIM(ctx context.Context, domain, selector, expected string) Result {
	name := selector + "._domainkey." + domain
	records, res := c.lookup(ctx, "DKIM", name)
	if res != nil {
		return *res
	}

	// Long keys are split over several strings
	record := strings.Join(records, "")
	result := Result{Type: "DKIM", Name: name, Value: record}

	published := tagValue(record, "p")
	switch {
	case !strings.Contains(record, "v=DKIM1"):
		result.Status = StatusWarning
		result.Message = "record is not a DKIM key"
	case published == "":
		result.Status = StatusError
		result.Message = "key is revoked or missing (empty p=)"
	case expected != "" && published != tagValue(expected, "p"):
		result.Status = StatusError
		result.Message = "published key does not match the signing key"
	default:
		result.Status = StatusOK
	}
	return result
}

func (c *Checker) checkDMARC(ctx context.Context, domain string) Result {
	name := "_dmarc." + domain
	records, res := c.lookup(ctx, "DMARC", name)
	if res != nil {
		return *res
	}

	record := strings.Join(records, "")
	result := Result{Type: "DMARC", Name: name, Value: record}
	if !strings.HasPrefix(record, "v=DMARC1") {
		result.Status = StatusWarning
		result.Message = "record is not a DMARC policy"
		return result
	}

	result.Status = StatusOK
	switch tagValue(record, "p") {
	case "reject", "quarantine":
		result.Message = "policy " + tagValue(record, "p")
	case "none":
		result.Status = StatusWarning
		result.Message = "policy none only monitors"
	}
	return result
}

// tagValue returns the value of tag in a "k=v; k=v" record
func tagValue(record, tag string) string {
	for _, part := range strings.Split(record, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && strings.TrimSpace(k) == tag {
			return strings.Join(strings.Fields(v), "")
		}
	}
	return ""
}
