// Package mailer delivers the site's outgoing email.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Kalhara-JA/retail-os/internal/metrics"
)

// Mode selects how messages leave the process
type Mode string

const (
	ModeSMTP     Mode = "smtp"
	ModeSandbox  Mode = "sandbox"
	ModeDisabled Mode = "disabled"
)

// ParseMode validates a configured mode. Empty means disabled.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeDisabled, nil
	case ModeSMTP, ModeSandbox, ModeDisabled:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mail mode %q (expected smtp, sandbox or disabled)", s)
}

var (
	ErrNoRecipients = errors.New("message has no recipients")
	ErrNoSender     = errors.New("message has no sender")
)

// Message is an HTML email
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	CC      []string `json:"cc,omitempty"`
	BCC     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Recipients returns To, CC and BCC combined
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.CC)+len(m.BCC))
	out = append(out, m.To...)
	out = append(out, m.CC...)
	out = append(out, m.BCC...)
	return out
}

// Validate checks the envelope is usable
func (m *Message) Validate() error {
	if m.From == "" {
		return ErrNoSender
	}
	if len(m.Recipients()) == 0 {
		return ErrNoRecipients
	}
	return nil
}

// Mailer sends a single message
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
	Mode() Mode
}

// Result is the outcome of one message in SendEach
type Result struct {
	Message *Message
	Err     error
}

// SendEach sends every message concurrently and waits for all of them.
// A failed send never stops the others. Results are in input order.
func SendEach(ctx context.Context, m Mailer, msgs []*Message) []Result {
	results := make([]Result, len(msgs))

	var wg sync.WaitGroup
	for i, msg := range msgs {
		wg.Add(1)
		go func(i int, msg *Message) {
			defer wg.Done()
			results[i] = Result{Message: msg, Err: m.Send(ctx, msg)}
		}(i, msg)
	}
	wg.Wait()

	return results
}

func record(mode Mode, err error) {
	if err != nil {
		metrics.IncEmailsFailed(string(mode))
		return
	}
	metrics.IncEmailsSent(string(mode))
}
