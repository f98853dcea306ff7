package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/Kalhara-JA/retail-os/internal/email"
)

// TLS modes for the relay connection
const (
	TLSNone     = "none"
	TLSStartTLS = "starttls"
	TLSImplicit = "implicit"
)

// Signer adds a signature to a composed message
type Signer interface {
	Sign(message []byte) ([]byte, error)
	Domain() string
}

// SMTPOptions configure the relay connection
type SMTPOptions struct {
	Host               string
	Port               int
	Username           string
	Password           string
	TLS                string // none, starttls or implicit
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// SMTPMailer submits messages to an SMTP relay
type SMTPMailer struct {
	opts    SMTPOptions
	signer  Signer
	headers *HeaderRules
	logger  *slog.Logger
	now     func() time.Time
}

// NewSMTP creates a relay mailer
func NewSMTP(opts SMTPOptions, logger *slog.Logger) *SMTPMailer {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.TLS == "" {
		opts.TLS = TLSStartTLS
	}
	return &SMTPMailer{
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// SetSigner enables DKIM signing of outgoing messages
func (m *SMTPMailer) SetSigner(s Signer) {
	m.signer = s
}

// SetHeaderRules installs header edits applied before signing
func (m *SMTPMailer) SetHeaderRules(r *HeaderRules) {
	m.headers = r
}

// Mode returns ModeSMTP
func (m *SMTPMailer) Mode() Mode {
	return ModeSMTP
}

// Send composes, signs and submits msg
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	err := m.send(ctx, msg)
	record(ModeSMTP, err)
	if err != nil {
		m.logger.Error("failed to send email", "to", msg.To, "subject", msg.Subject, "error", err)
		return err
	}
	m.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Compose(msg, m.now())
	if err != nil {
		return err
	}
	data = ApplyHeaderRules(data, m.headers.For(email.ExtractDomain(msg.From)))

	if m.signer != nil {
		signed, err := m.signer.Sign(data)
		if err != nil {
			m.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", m.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	c, err := m.dial()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.addr(), err)
	}
	defer c.Close()

	c.CommandTimeout = m.opts.Timeout
	c.SubmissionTimeout = m.opts.Timeout

	if m.opts.Username != "" {
		auth := sasl.NewPlainClient("", m.opts.Username, m.opts.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.SendMail(msg.From, msg.Recipients(), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	return c.Quit()
}

func (m *SMTPMailer) dial() (*smtp.Client, error) {
	tlsConfig := &tls.Config{
		ServerName:         m.opts.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: m.opts.InsecureSkipVerify,
	}

	switch m.opts.TLS {
	case TLSImplicit:
		return smtp.DialTLS(m.addr(), tlsConfig)
	case TLSStartTLS:
		return smtp.DialStartTLS(m.addr(), tlsConfig)
	default:
		return smtp.Dial(m.addr())
	}
}

func (m *SMTPMailer) addr() string {
	return net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))
}
