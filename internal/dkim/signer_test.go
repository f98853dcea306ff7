package dkim

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-msgauth/dkim"
)

const testMessage = "From: hello@shop.example\r\n" +
	"To: jane@example.org\r\n" +
	"Subject: Welcome\r\n" +
	"Date: Mon, 1 Jan 2024 12:00:00 +0000\r\n" +
	"Message-ID: <1@shop.example>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Thanks for subscribing.</p>\r\n"

func newTestSigner(t testing.TB) (*Signer, *KeyPair) {
	t.Helper()
	kp, err := GenerateKey("shop.example", "mail", 1024)
	if err != nil {
		t.Fatal(err)
	}
	return NewSigner(kp.PrivateKey, Options{Domain: "shop.example", Selector: "mail"}), kp
}

func TestNewSignerDefaults(t *testing.T) {
	signer, _ := newTestSigner(t)

	if signer.Domain() != "shop.example" {
		t.Errorf("Domain() = %q", signer.Domain())
	}
	if signer.Selector() != "mail" {
		t.Errorf("Selector() = %q", signer.Selector())
	}
	if len(signer.headers) != len(DefaultHeaders) {
		t.Errorf("expected default headers, got %v", signer.headers)
	}
}

func TestNewSignerFromFile(t *testing.T) {
	_, kp := newTestSigner(t)
	keyPath := filepath.Join(t.TempDir(), "dkim.key")
	if err := kp.SavePrivateKey(keyPath); err != nil {
		t.Fatal(err)
	}

	signer, err := NewSignerFromFile(keyPath, Options{Domain: "shop.example", Selector: "mail"})
	if err != nil {
		t.Fatalf("NewSignerFromFile failed: %v", err)
	}
	if signer.Domain() != "shop.example" {
		t.Errorf("Domain() = %q", signer.Domain())
	}

	if _, err := NewSignerFromFile("/nonexistent/key.pem", Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSign(t *testing.T) {
	signer, _ := newTestSigner(t)

	signed, err := signer.Sign([]byte(testMessage))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if !bytes.HasPrefix(signed, []byte("DKIM-Signature:")) {
		t.Error("signature header should be prepended")
	}
	if !bytes.HasSuffix(signed, []byte(testMessage)) {
		t.Error("original message should be preserved")
	}

	s := string(signed)
	for _, want := range []string{"d=shop.example", "s=mail", "a=rsa-sha256", "c=relaxed/relaxed"} {
		if !strings.Contains(s, want) {
			t.Errorf("signature missing %q", want)
		}
	}
}

func TestSignVerifies(t *testing.T) {
	signer, kp := newTestSigner(t)

	signed, err := signer.Sign([]byte(testMessage))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(signed), &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			if domain != kp.DNSName() {
				t.Errorf("unexpected lookup %q", domain)
			}
			return []string{kp.DNSRecord()}, nil
		},
	})
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if len(verifications) != 1 {
		t.Fatalf("expected 1 verification, got %d", len(verifications))
	}
	if verifications[0].Err != nil {
		t.Errorf("signature invalid: %v", verifications[0].Err)
	}
}

func BenchmarkSign(b *testing.B) {
	signer, _ := newTestSigner(b)
	msg := []byte(testMessage)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		signer.Sign(msg)
	}
}

func TestSignerDNSRecord(t *testing.T) {
	signer, kp := newTestSigner(t)

	if signer.DNSName() != "mail._domainkey.shop.example" {
		t.Errorf("DNSName() = %q", signer.DNSName())
	}
	record, err := signer.DNSRecord()
	if err != nil {
		t.Fatalf("DNSRecord failed: %v", err)
	}
	if record != kp.DNSRecord() {
		t.Errorf("signer and key pair disagree:\n%s\n%s", record, kp.DNSRecord())
	}
	if !strings.HasPrefix(record, "v=DKIM1; k=rsa; p=") {
		t.Errorf("unexpected record %q", record)
	}
}
