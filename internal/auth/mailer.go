package auth

import (
	"context"
	"log/slog"
)

// Mailer delivers password recovery links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogMailer writes recovery links to the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Password reset requested",
		"component", "auth",
		"email", email,
		"link", link)
	return nil
}
