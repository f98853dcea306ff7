package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Kalhara-JA/retail-os/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMailer struct {
	calls atomic.Int32
	fail  map[string]bool
	delay time.Duration
}

func (f *fakeMailer) Send(ctx context.Context, msg *Message) error {
	f.calls.Add(1)
	time.Sleep(f.delay)
	if f.fail[msg.To[0]] {
		return errors.New("relay rejected " + msg.To[0])
	}
	return nil
}

func (f *fakeMailer) Mode() Mode { return ModeSMTP }

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeDisabled, false},
		{"smtp", ModeSMTP, false},
		{"sandbox", ModeSandbox, false},
		{"disabled", ModeDisabled, false},
		{"SMTP", "", true},
		{"mailgun", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want error
	}{
		{"ok", Message{From: "a@b.co", To: []string{"c@d.co"}}, nil},
		{"bcc only", Message{From: "a@b.co", BCC: []string{"c@d.co"}}, nil},
		{"no sender", Message{To: []string{"c@d.co"}}, ErrNoSender},
		{"no recipients", Message{From: "a@b.co"}, ErrNoRecipients},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSendEachIsolatesFailures(t *testing.T) {
	m := &fakeMailer{
		fail:  map[string]bool{"b@x.com": true},
		delay: 10 * time.Millisecond,
	}

	msgs := []*Message{
		{From: "s@x.com", To: []string{"a@x.com"}},
		{From: "s@x.com", To: []string{"b@x.com"}},
		{From: "s@x.com", To: []string{"c@x.com"}},
	}

	results := SendEach(context.Background(), m, msgs)

	if got := m.calls.Load(); got != 3 {
		t.Errorf("expected 3 sends, got %d", got)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Message != msgs[i] {
			t.Errorf("result %d is out of order", i)
		}
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Error("expected failure for b@x.com")
	}
}

func TestSendEachEmpty(t *testing.T) {
	if results := SendEach(context.Background(), &fakeMailer{}, nil); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestDisabledMailer(t *testing.T) {
	m := metrics.New()
	metrics.SetGlobal(m)
	defer metrics.SetGlobal(nil)

	mailer := NewDisabled(testLogger())
	if mailer.Mode() != ModeDisabled {
		t.Errorf("Mode() = %s", mailer.Mode())
	}

	err := mailer.Send(context.Background(), &Message{To: []string{"a@b.co"}, Subject: "Hi"})
	if err != nil {
		t.Errorf("Send() = %v", err)
	}
	if got := testutil.ToFloat64(m.EmailsSentTotal.WithLabelValues("disabled")); got != 1 {
		t.Errorf("disabled sends = %v, want 1", got)
	}
}

func TestCompose(t *testing.T) {
	msg := &Message{
		From:    "hello@shop.example",
		To:      []string{"a@x.com", "b@x.com"},
		CC:      []string{"c@x.com"},
		BCC:     []string{"hidden@x.com"},
		Subject: "Bienvenue à bord",
		HTML:    "<p>Hello a@x.com</p>",
	}

	data, err := Compose(msg, time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	s := string(data)

	for _, want := range []string{
		"From: hello@shop.example\r\n",
		"To: a@x.com, b@x.com\r\n",
		"Cc: c@x.com\r\n",
		"Date: Fri, 01 Mar 2024 09:15:00 +0000\r\n",
		"@shop.example>\r\n",
		"Content-Type: text/html; charset=utf-8\r\n",
		"Subject: =?utf-8?q?",
		"\r\n\r\n<p>Hello a@x.com</p>",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("composed message missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, "hidden@x.com") {
		t.Error("BCC recipient leaked into headers")
	}
}
