// Package config loads the service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	minStateKeyLength = 32
)

// Config is the full service configuration
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3000"`
	Debug    bool   `env:"DEBUG"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Database Database
	Redis    Redis
	Session  Session
	Mail     Mail
	Google   Google
	Links    Links

	AdminEmails            []string      `env:"ADMIN_EMAILS" envSeparator:","`
	ResetTokenTTL          time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	BcryptCost             int           `env:"BCRYPT_COST" envDefault:"10"`
	HideUnknownResetEmails bool          `env:"HIDE_UNKNOWN_RESET_EMAILS"`
	StateSigningKey        string        `env:"STATE_SIGNING_KEY"`
	CORSAllowedOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	SweepSchedule          string        `env:"SWEEP_SCHEDULE" envDefault:"@every 15m"`
}

type Database struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DB_DSN" envDefault:"file:vaultx.db?cache=shared"`
}

// Redis is optional, an empty Addr disables the session cache
type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type Session struct {
	TTL          time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	CookieName   string        `env:"SESSION_COOKIE_NAME" envDefault:"vaultx_session"`
	CookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
}

// Mail is optional, an empty Host logs links instead of sending them
type Mail struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASS"`
	From     string `env:"MAIL_FROM"`
}

// Google is optional, an empty ClientID disables federated login
type Google struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	CallbackURL  string `env:"GOOGLE_CALLBACK_URL"`
}

type Links struct {
	PublicURL        string `env:"PUBLIC_URL" envDefault:"http://localhost:3000"`
	FrontendURL      string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	VerifySuccessURL string `env:"VERIFY_SUCCESS_URL"`
	LoginSuccessURL  string `env:"LOGIN_SUCCESS_URL"`
	LoginFailureURL  string `env:"LOGIN_FAILURE_URL"`
}

// Load reads the given dotenv files, or .env when none are given, and then
// parses the environment. Variables already set win over file values and
// missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("unable to read %s", file))
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse environment")
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	front := strings.TrimRight(c.Links.FrontendURL, "/")
	if c.Links.VerifySuccessURL == "" {
		c.Links.VerifySuccessURL = front + "/login?verified=true"
	}
	if c.Links.LoginSuccessURL == "" {
		c.Links.LoginSuccessURL = front + "/dashboard"
	}
	if c.Links.LoginFailureURL == "" {
		c.Links.LoginFailureURL = front + "/login?error=oauth"
	}
	if c.Google.CallbackURL == "" && c.Google.ClientID != "" {
		c.Google.CallbackURL = strings.TrimRight(c.Links.PublicURL, "/") + "/auth/google/callback"
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
}

// Validate checks cross field rules the env tags can not express
func (c *Config) Validate() error {
	if err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(c,
			validation.Field(&c.HTTPAddr, validation.Required),
			validation.Field(&c.BcryptCost, validation.Min(4), validation.Max(31)),
			validation.Field(&c.ResetTokenTTL, validation.Min(time.Minute)),
			validation.Field(&c.SweepSchedule, validation.Required),
			validation.Field(&c.StateSigningKey,
				validation.When(c.FederationEnabled(), validation.Required, validation.Length(minStateKeyLength, 0)),
			),
			validation.Field(&c.Database),
			validation.Field(&c.Session),
			validation.Field(&c.Mail),
			validation.Field(&c.Links),
		)
	}, "invalid configuration"); err != nil {
		return err
	}
	return nil
}

func (d Database) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (s Session) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.TTL, validation.Min(time.Minute)),
		validation.Field(&s.CookieName, validation.Required),
	)
}

func (m Mail) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.From, validation.When(m.Host != "", validation.Required, is.Email)),
		validation.Field(&m.Port, validation.When(m.Host != "", validation.Min(1), validation.Max(65535))),
	)
}

func (l Links) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.PublicURL, validation.Required, is.URL),
		validation.Field(&l.FrontendURL, validation.Required, is.URL),
	)
}

// FederationEnabled reports whether Google login is configured
func (c *Config) FederationEnabled() bool {
	return c.Google.ClientID != ""
}

// MailEnabled reports whether an SMTP server is configured
func (c *Config) MailEnabled() bool {
	return c.Mail.Host != ""
}

// RedisEnabled reports whether the redis session cache is configured
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}
