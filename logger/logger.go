// Package logger backs auth.Logger with github.com/op/go-logging.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
	auth "github.com/vaultx/vaultx-auth"
)

const (
	DefaultModule = "vaultx"
	timeFormat    = "2006/01/02 15:04:05"
)

// Logger writes key/value records through a go-logging backend
type Logger struct {
	log *logging.Logger
}

var _ auth.Logger = (*Logger)(nil)

type config struct {
	module   string
	out      io.Writer
	withTime bool
}

type Option func(*config)

// WithModule sets the go-logging module name
func WithModule(module string) Option {
	return func(c *config) {
		if module != "" {
			c.module = module
		}
	}
}

// WithOutput sets the destination, stderr by default
func WithOutput(out io.Writer) Option {
	return func(c *config) {
		if out != nil {
			c.out = out
		}
	}
}

// WithoutTime drops the timestamp from each line
func WithoutTime() Option {
	return func(c *config) {
		c.withTime = false
	}
}

// New returns a logger filtering below level. Level names follow go-logging
// (debug, info, notice, warning, error, critical), "warn" is accepted as an
// alias and unknown names fall back to info.
func New(level string, opts ...Option) *Logger {
	cfg := &config{
		module:   DefaultModule,
		out:      os.Stderr,
		withTime: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	backend := logging.NewBackendFormatter(
		logging.NewLogBackend(cfg.out, "", 0),
		newFormatter(cfg.withTime),
	)

	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(ParseLevel(level), cfg.module)

	log := logging.MustGetLogger(cfg.module)
	log.SetBackend(leveled)
	log.ExtraCalldepth = 1

	return &Logger{log: log}
}

// ParseLevel maps a configured level name to a go-logging level
func ParseLevel(level string) logging.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warn") {
		return logging.WARNING
	}
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return logging.INFO
	}
	return lvl
}

func newFormatter(withTime bool) logging.Formatter {
	format := `%{level:.4s} %{module} - %{message}`
	if withTime {
		format = `%{time:` + timeFormat + `} ` + format
	}
	return logging.MustStringFormatter(format)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log.Debug(record(msg, args...))
}

func (l *Logger) Info(msg string, args ...any) {
	l.log.Info(record(msg, args...))
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log.Warning(record(msg, args...))
}

func (l *Logger) Error(msg string, args ...any) {
	l.log.Error(record(msg, args...))
}

func record(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fmt.Fprintf(&b, " %v", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%s", args[i], quote(args[i+1]))
	}
	return b.String()
}

func quote(v any) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
