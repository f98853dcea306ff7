// Package ipfilter restricts HTTP routes to a list of client networks.
package ipfilter

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// Filter holds the allowed networks. An empty Filter allows everyone.
type Filter struct {
	nets   []*net.IPNet
	logger *slog.Logger
}

// Parse converts IPs and CIDRs to networks. Unlike New it rejects
// malformed entries.
func Parse(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			nets = append(nets, ipNet)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP %q", entry)
		}
		bits := 128
		if v4 := ip.To4(); v4 != nil {
			ip = v4
			bits = 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets, nil
}

// New creates a filter, skipping and logging malformed entries
func New(entries []string, logger *slog.Logger) *Filter {
	f := &Filter{logger: logger}
	for _, entry := range entries {
		nets, err := Parse([]string{entry})
		if err != nil {
			logger.Warn("ignoring allowed_ips entry", "entry", entry, "error", err)
			continue
		}
		f.nets = append(f.nets, nets...)
	}
	return f
}

// Enabled reports whether any network is configured
func (f *Filter) Enabled() bool {
	return len(f.nets) > 0
}

// Allows reports whether ip is inside one of the networks
func (f *Filter) Allows(ip net.IP) bool {
	if !f.Enabled() {
		return true
	}
	if ip == nil {
		return false
	}
	for _, n := range f.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RemoteIP returns the client address of r. Proxy headers are expected to
// have been folded into RemoteAddr already by chi's RealIP middleware.
func RemoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(strings.TrimSpace(host))
}

// Middleware passes allowed requests to next and the rest to deny
func (f *Filter) Middleware(deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !f.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			ip := RemoteIP(r)
			if !f.Allows(ip) {
				f.logger.Warn("request blocked by IP filter", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
