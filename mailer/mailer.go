// Package mailer sends verification and password reset links over SMTP.
package mailer

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/vaultx/vaultx-auth"
	"gopkg.in/gomail.v2"
)

// Dialer is satisfied by *gomail.Dialer
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config holds SMTP settings
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// Product is shown in subjects and bodies
	Product string
}

// Mailer implements auth.Notifier with gomail
type Mailer struct {
	cfg    Config
	dialer Dialer
	logger auth.Logger
}

var _ auth.Notifier = (*Mailer)(nil)

type Option func(*Mailer)

// WithDialer replaces the SMTP dialer
func WithDialer(d Dialer) Option {
	return func(m *Mailer) {
		if d != nil {
			m.dialer = d
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(m *Mailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func New(cfg Config, opts ...Option) *Mailer {
	if cfg.Product == "" {
		cfg.Product = "Vaultx"
	}
	m := &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		logger: nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

var (
	verificationTpl = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>{{.Product}} email verification</h2>
    <p>Confirm your email address to activate your account.</p>
    <p><a href="{{.Link}}">Verify email</a></p>
    <p style="font-size: 12px; color: #6b7280;">If the button does not work, paste this link into your browser: {{.Link}}</p>
  </div>
</body>
</html>`))

	resetTpl = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>{{.Product}} password reset</h2>
    <p>Someone asked to reset the password for this account. The link works once and expires soon.</p>
    <p><a href="{{.Link}}">Choose a new password</a></p>
    <p style="font-size: 12px; color: #6b7280;">If you did not ask for this you can ignore this email.</p>
  </div>
</body>
</html>`))
)

type mailData struct {
	Product string
	Link    string
}

func (m *Mailer) SendVerification(ctx context.Context, email, link string) error {
	return m.send(ctx, email, m.cfg.Product+" - verify your email", verificationTpl, link)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, email, link string) error {
	return m.send(ctx, email, m.cfg.Product+" - reset your password", resetTpl, link)
}

func (m *Mailer) send(ctx context.Context, to, subject string, tpl *template.Template, link string) error {
	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "mail delivery cancelled")
	}

	if strings.TrimSpace(to) == "" {
		return goerrors.New("empty recipient", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	var body bytes.Buffer
	if err := tpl.Execute(&body, mailData{Product: m.cfg.Product, Link: link}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to render email")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", link)
	msg.AddAlternative("text/html", body.String())

	if err := m.dialer.DialAndSend(msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "unable to send email").
			WithCode(goerrors.CodeInternal)
	}

	m.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
