package mailer

import (
	"context"
	"log/slog"
)

// DisabledMailer accepts every message and sends nothing
type DisabledMailer struct {
	logger *slog.Logger
}

// NewDisabled creates a mailer for deployments without mail configured
func NewDisabled(logger *slog.Logger) *DisabledMailer {
	return &DisabledMailer{logger: logger}
}

// Send logs the message and reports success
func (m *DisabledMailer) Send(ctx context.Context, msg *Message) error {
	m.logger.Info("mail disabled, not sending",
		"to", msg.To,
		"subject", msg.Subject,
	)
	record(ModeDisabled, nil)
	return nil
}

// Mode returns ModeDisabled
func (m *DisabledMailer) Mode() Mode {
	return ModeDisabled
}
