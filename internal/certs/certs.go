// Package certs provides HTTPS certificates for the API server.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

// Info describes a certificate's validity window
type Info struct {
	Domain    string
	DNSNames  []string
	NotBefore time.Time
	NotAfter  time.Time
	DaysLeft  int
}

// Expired reports whether the certificate is no longer valid
func (i Info) Expired() bool {
	return time.Now().After(i.NotAfter)
}

// Load reads a PEM key pair and returns a server TLS configuration
func Load(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Inspect reads the first certificate in a PEM file
func Inspect(certFile string) (*Info, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, errors.New("no certificate found in " + certFile)
		}
		if block.Type == "CERTIFICATE" {
			return parse(block.Bytes)
		}
	}
}

func parse(der []byte) (*Info, error) {
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return describe(leaf), nil
}

func describe(leaf *x509.Certificate) *Info {
	domain := leaf.Subject.CommonName
	if domain == "" && len(leaf.DNSNames) > 0 {
		domain = leaf.DNSNames[0]
	}
	return &Info{
		Domain:    domain,
		DNSNames:  leaf.DNSNames,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
		DaysLeft:  int(time.Until(leaf.NotAfter).Hours() / 24),
	}
}
