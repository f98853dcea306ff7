// Package dkim signs outgoing mail with DKIM.
package dkim

import (
	"bytes"
	"crypto"
	"fmt"

	"github.com/emersion/go-msgauth/dkim"
)

// DefaultHeaders are the header fields covered by the signature
var DefaultHeaders = []string{
	"From", "To", "Cc", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type",
}

// Options describe the signing identity
type Options struct {
	Domain   string
	Selector string
	Headers  []string // nil means DefaultHeaders
}

// Signer signs email messages with DKIM
type Signer struct {
	key     crypto.Signer
	domain  string
	sel     string
	headers []string
}

// NewSigner creates a signer for an RSA or Ed25519 private key
func NewSigner(key crypto.Signer, opts Options) *Signer {
	headers := opts.Headers
	if len(headers) == 0 {
		headers = DefaultHeaders
	}
	return &Signer{
		key:     key,
		domain:  opts.Domain,
		sel:     opts.Selector,
		headers: headers,
	}
}

// NewSignerFromFile loads a PEM key and creates a signer for it
func NewSignerFromFile(keyFile string, opts Options) (*Signer, error) {
	key, err := LoadPrivateKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load DKIM key: %w", err)
	}
	return NewSigner(key, opts), nil
}

// Sign returns message with a DKIM-Signature header prepended
func (s *Signer) Sign(message []byte) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:                 s.domain,
		Selector:               s.sel,
		Signer:                 s.key,
		Hash:                   crypto.SHA256,
		HeaderKeys:             s.headers,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(message), options); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return signed.Bytes(), nil
}

// Domain returns the signing domain
func (s *Signer) Domain() string {
	return s.domain
}

// Selector returns the DKIM selector
func (s *Signer) Selector() string {
	return s.sel
}

// DNSName returns the name the public key TXT record is published under
func (s *Signer) DNSName() string {
	return dnsName(s.sel, s.domain)
}

// DNSRecord returns the TXT record value for the signing key
func (s *Signer) DNSRecord() (string, error) {
	return publicKeyRecord(s.key.Public())
}
