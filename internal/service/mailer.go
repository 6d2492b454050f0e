package service

import (
	"context"
	"log/slog"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/logging"
)

// Sender addresses used in outgoing mail.
const (
	MailFrom    = "noreply@turbo.voltig.dev"
	MailCompany = "Voltig Turbo"
)

// Mailer delivers auth emails.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, user *auth.User, url string) error
}

// LogMailer writes verification links to the log instead of sending mail.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendVerificationEmail logs the link at info level.
func (m *LogMailer) SendVerificationEmail(ctx context.Context, user *auth.User, url string) error {
	logging.Auth(m.logger, user.ID).Info("verification email",
		"from", MailFrom,
		"to", user.Email,
		"subject", "Verify your email for "+MailCompany,
		"url", url)
	return nil
}

// Compile-time interface verification.
var _ Mailer = (*LogMailer)(nil)
