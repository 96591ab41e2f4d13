package auth

import (
	"context"
	"net/url"
	"strings"
)

// LinkBuilder turns tokens into the absolute links sent to users
type LinkBuilder struct {
	// PublicURL is where this service is reachable, verification links
	// point at its /verify-email route.
	PublicURL string
	// FrontendURL hosts the reset password form.
	FrontendURL string
}

// VerificationLink returns PublicURL/verify-email/<token>
func (l LinkBuilder) VerificationLink(token string) string {
	return joinLink(l.PublicURL, "verify-email", token)
}

// ResetLink returns FrontendURL/reset-password/<token>
func (l LinkBuilder) ResetLink(token string) string {
	return joinLink(l.FrontendURL, "reset-password", token)
}

func joinLink(base, route, token string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	return base + "/" + route + "/" + url.PathEscape(token)
}

// LogNotifier writes links to the logger instead of sending them. Meant for
// local development where no SMTP server is configured.
type LogNotifier struct {
	logger Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger Logger) *LogNotifier {
	return &LogNotifier{logger: normalizeLogger(logger)}
}

func (n *LogNotifier) SendVerification(ctx context.Context, email, link string) error {
	n.logger.Info("verification email", "to", email, "link", link)
	return nil
}

func (n *LogNotifier) SendPasswordReset(ctx context.Context, email, link string) error {
	n.logger.Info("password reset email", "to", email, "link", link)
	return nil
}
