package certs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/crypto/acme/autocert"
)

// renewWindow is how close to expiry a cached certificate counts as stale
const renewWindow = 7

// ACME obtains and renews certificates from Let's Encrypt
type ACME struct {
	manager *autocert.Manager
	cache   autocert.DirCache
	domains []string
}

// NewACME creates a manager restricted to domains, caching under cacheDir
func NewACME(email string, domains []string, cacheDir string) *ACME {
	cache := autocert.DirCache(cacheDir)
	return &ACME{
		manager: &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      email,
			HostPolicy: autocert.HostWhitelist(domains...),
			Cache:      cache,
		},
		cache:   cache,
		domains: domains,
	}
}

// Domains returns the managed domains
func (a *ACME) Domains() []string {
	return a.domains
}

// TLSConfig returns a server configuration that fetches certificates on demand
func (a *ACME) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: a.manager.GetCertificate,
		MinVersion:     tls.VersionTLS12,
		NextProtos:     []string{"h2", "http/1.1"},
	}
}

// HTTPHandler answers HTTP-01 challenges and redirects everything else to HTTPS
func (a *ACME) HTTPHandler() http.Handler {
	return a.manager.HTTPHandler(http.HandlerFunc(redirectHTTPS))
}

// Cached lists certificates already present in the cache, without
// contacting Let's Encrypt. Missing or unreadable entries are skipped.
func (a *ACME) Cached(ctx context.Context) []Info {
	var infos []Info
	for _, domain := range a.domains {
		data, err := a.cache.Get(ctx, domain)
		if err != nil {
			continue
		}
		// Cache entries hold the private key followed by the chain
		cert, err := tls.X509KeyPair(data, data)
		if err != nil || len(cert.Certificate) == 0 {
			continue
		}
		info, err := parse(cert.Certificate[0])
		if err != nil {
			continue
		}
		info.Domain = domain
		infos = append(infos, *info)
	}
	return infos
}

// NeedsRenewal reports whether any domain lacks a cached certificate
// or holds one close to expiry
func (a *ACME) NeedsRenewal(ctx context.Context) bool {
	cached := a.Cached(ctx)
	if len(cached) != len(a.domains) {
		return true
	}
	for _, info := range cached {
		if info.DaysLeft < renewWindow {
			return true
		}
	}
	return false
}

// Warm obtains certificates for every domain. The challenge listener
// must already be serving HTTPHandler.
func (a *ACME) Warm(ctx context.Context) ([]Info, error) {
	var infos []Info
	for _, domain := range a.domains {
		if err := ctx.Err(); err != nil {
			return infos, err
		}

		cert, err := a.manager.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
		if err != nil {
			return infos, fmt.Errorf("failed to obtain certificate for %s: %w", domain, err)
		}
		if cert == nil || len(cert.Certificate) == 0 {
			return infos, errors.New("empty certificate for " + domain)
		}

		info, err := parse(cert.Certificate[0])
		if err != nil {
			return infos, err
		}
		info.Domain = domain
		infos = append(infos, *info)
	}
	return infos, nil
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	http.Redirect(w, r, "https://"+host+r.URL.RequestURI(), http.StatusMovedPermanently)
}
