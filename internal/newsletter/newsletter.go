// Package newsletter handles newsletter sign-ups.
package newsletter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Kalhara-JA/retail-os/internal/email"
	"github.com/Kalhara-JA/retail-os/internal/mailer"
	"github.com/Kalhara-JA/retail-os/internal/metrics"
	"github.com/Kalhara-JA/retail-os/internal/schema"
	"github.com/Kalhara-JA/retail-os/internal/store"
	"github.com/Kalhara-JA/retail-os/internal/template"
)

// FormName is stored on every submission recorded by Subscribe
const FormName = "newsletter"

// ErrInvalidEmail is returned for addresses that fail validation
var ErrInvalidEmail = errors.New("invalid email address")

// Renderer renders a named email template
type Renderer interface {
	Render(ctx context.Context, name string, vars template.Variables) (*template.RenderResult, error)
}

// Options configure the subscription flow
type Options struct {
	From            string   // sender address of outgoing mail
	AdminRecipients []string // who is told about new subscribers
}

// Subscription is a single sign-up request
type Subscription struct {
	Email string
	IP    string
}

// Outcome describes what Subscribe did
type Outcome struct {
	Email    string          `json:"email"`
	Recorded bool            `json:"recorded"`
	MailSent bool            `json:"mailSent"`
	Results  []mailer.Result `json:"-"`
}

// Failed returns the number of emails that could not be sent
func (o *Outcome) Failed() int {
	n := 0
	for _, r := range o.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Service runs the subscription flow
type Service struct {
	store    store.Store
	renderer Renderer
	mailer   mailer.Mailer
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a newsletter service
func NewService(s store.Store, r Renderer, m mailer.Mailer, opts Options, logger *slog.Logger) *Service {
	return &Service{
		store:    s,
		renderer: r,
		mailer:   m,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Subscribe validates the address, records the submission and sends the
// welcome and admin notification emails. Only validation errors are returned;
// storage and mail failures are logged and reported in the Outcome.
func (s *Service) Subscribe(ctx context.Context, sub Subscription) (*Outcome, error) {
	addr := email.Normalize(sub.Email)
	if !email.IsValid(addr) {
		metrics.IncSubscriptions("invalid")
		return nil, ErrInvalidEmail
	}

	now := s.now()
	out := &Outcome{Email: addr}

	_, err := s.store.Create(ctx, schema.FormSubmissions, store.Document{
		"form":        FormName,
		"email":       addr,
		"ip":          sub.IP,
		"submittedAt": now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("failed to record subscription", "email", addr, "error", err)
	} else {
		out.Recorded = true
	}

	if s.mailer.Mode() == mailer.ModeDisabled {
		s.logger.Info("mail disabled, skipping newsletter emails", "email", addr)
		metrics.IncSubscriptions("ok")
		return out, nil
	}

	vars := template.Variables{
		Email: addr,
		Date:  now.Format("2006-01-02"),
		Time:  now.Format("15:04:05"),
		IP:    sub.IP,
	}

	var msgs []*mailer.Message
	if msg := s.build(ctx, template.Welcome, vars, []string{addr}); msg != nil {
		msgs = append(msgs, msg)
	}
	if len(s.opts.AdminRecipients) > 0 {
		if msg := s.build(ctx, template.AdminNotification, vars, s.opts.AdminRecipients); msg != nil {
			msgs = append(msgs, msg)
		}
	}

	out.Results = mailer.SendEach(ctx, s.mailer, msgs)
	for _, r := range out.Results {
		if r.Err != nil {
			s.logger.Warn("newsletter email failed", "to", r.Message.To, "error", r.Err)
		}
	}
	out.MailSent = len(msgs) > 0 && out.Failed() == 0

	metrics.IncSubscriptions("ok")
	s.logger.Info("newsletter subscription",
		"email", addr,
		"emails", len(out.Results),
		"failed", out.Failed(),
	)
	return out, nil
}

func (s *Service) build(ctx context.Context, name string, vars template.Variables, to []string) *mailer.Message {
	rendered, err := s.renderer.Render(ctx, name, vars)
	if err != nil {
		s.logger.Error("failed to render email", "template", name, "error", err)
		return nil
	}
	return &mailer.Message{
		From:    s.opts.From,
		To:      to,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
	}
}
