package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// selfSigned returns PEM encoded certificate and key for host, valid for ttl
func selfSigned(t *testing.T, host string, ttl time.Duration) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: host},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(ttl),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{host},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM := selfSigned(t, "cms.shop.example", 24*time.Hour)
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	invalid := filepath.Join(dir, "invalid.pem")
	writeFile(t, certFile, certPEM)
	writeFile(t, keyFile, keyPEM)
	writeFile(t, invalid, []byte("invalid"))

	tests := []struct {
		name    string
		cert    string
		key     string
		wantErr bool
	}{
		{"valid pair", certFile, keyFile, false},
		{"missing files", filepath.Join(dir, "nope.pem"), filepath.Join(dir, "nope.key"), true},
		{"invalid cert", invalid, keyFile, true},
		{"swapped", keyFile, certFile, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.cert, tt.key)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(cfg.Certificates) != 1 {
				t.Errorf("expected 1 certificate, got %d", len(cfg.Certificates))
			}
			if cfg.MinVersion != tls.VersionTLS12 {
				t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM := selfSigned(t, "cms.shop.example", 30*24*time.Hour)

	// Key first, as in combined PEM bundles
	bundle := filepath.Join(dir, "bundle.pem")
	writeFile(t, bundle, append(keyPEM, certPEM...))

	info, err := Inspect(bundle)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Domain != "cms.shop.example" {
		t.Errorf("Domain = %q", info.Domain)
	}
	if info.DaysLeft < 28 || info.DaysLeft > 30 {
		t.Errorf("DaysLeft = %d, want about 30", info.DaysLeft)
	}
	if info.Expired() {
		t.Error("fresh certificate reported as expired")
	}

	keyOnly := filepath.Join(dir, "key.pem")
	writeFile(t, keyOnly, keyPEM)
	if _, err := Inspect(keyOnly); err == nil {
		t.Error("expected error for file without a certificate")
	}
}

func TestACMETLSConfig(t *testing.T) {
	a := NewACME("ops@shop.example", []string{"cms.shop.example"}, t.TempDir())

	cfg := a.TLSConfig()
	if cfg.GetCertificate == nil {
		t.Error("GetCertificate should be set")
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}
	if got := a.Domains(); len(got) != 1 || got[0] != "cms.shop.example" {
		t.Errorf("Domains() = %v", got)
	}
}

func TestACMECached(t *testing.T) {
	dir := t.TempDir()
	domains := []string{"cms.shop.example", "api.shop.example"}
	a := NewACME("", domains, dir)
	ctx := context.Background()

	if got := a.Cached(ctx); len(got) != 0 {
		t.Fatalf("empty cache returned %d certificates", len(got))
	}
	if !a.NeedsRenewal(ctx) {
		t.Error("empty cache should need renewal")
	}

	for _, d := range domains {
		certPEM, keyPEM := selfSigned(t, d, 60*24*time.Hour)
		writeFile(t, filepath.Join(dir, d), append(keyPEM, certPEM...))
	}

	cached := a.Cached(ctx)
	if len(cached) != 2 {
		t.Fatalf("expected 2 cached certificates, got %d", len(cached))
	}
	if cached[0].Domain != "cms.shop.example" {
		t.Errorf("Domain = %q", cached[0].Domain)
	}
	if a.NeedsRenewal(ctx) {
		t.Error("fresh certificates should not need renewal")
	}

	certPEM, keyPEM := selfSigned(t, "api.shop.example", 2*24*time.Hour)
	writeFile(t, filepath.Join(dir, "api.shop.example"), append(keyPEM, certPEM...))
	if !a.NeedsRenewal(ctx) {
		t.Error("certificate inside the renewal window should need renewal")
	}
}

func TestACMEHTTPHandlerRedirects(t *testing.T) {
	a := NewACME("", []string{"cms.shop.example"}, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "http://cms.shop.example:80/api/health?x=1", nil)
	rec := httptest.NewRecorder()
	a.HTTPHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://cms.shop.example/api/health?x=1" {
		t.Errorf("Location = %q", got)
	}
}
