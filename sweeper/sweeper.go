// Package sweeper periodically removes expired sessions and expired
// password reset tokens.
package sweeper

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
	auth "github.com/vaultx/vaultx-auth"
)

const (
	DefaultSchedule = "@every 15m"
	sweepTimeout    = 30 * time.Second
)

// Result reports what a single sweep removed
type Result struct {
	Sessions    int64
	ResetTokens int64
}

// Sweeper is a cron.Job over the SQL repositories
type Sweeper struct {
	repo   auth.RepositoryManager
	now    auth.Clock
	logger auth.Logger
	cron   *cron.Cron
}

var _ cron.Job = (*Sweeper)(nil)

type Option func(*Sweeper)

func WithClock(clock auth.Clock) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(repo auth.RepositoryManager, opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
		logger: nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Sweep deletes sessions and clears reset tokens that expired at or before
// the current time.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	now := s.now()
	res := Result{}

	n, err := s.repo.Sessions().DeleteExpired(ctx, now)
	if err != nil {
		return res, goerrors.Wrap(err, goerrors.CategoryOperation, "unable to delete expired sessions")
	}
	res.Sessions = n

	n, err = s.repo.Users().ClearExpiredResetTokens(ctx, now)
	if err != nil {
		return res, goerrors.Wrap(err, goerrors.CategoryOperation, "unable to clear expired reset tokens")
	}
	res.ResetTokens = n

	return res, nil
}

// Run implements cron.Job
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	res, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}

	if res.Sessions > 0 || res.ResetTokens > 0 {
		s.logger.Info("sweep completed", "sessions", res.Sessions, "reset_tokens", res.ResetTokens)
	}
}

// Start schedules the sweeper. An empty schedule uses DefaultSchedule.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	c := cron.New()
	if _, err := c.AddJob(schedule, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(s)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sweep schedule")
	}
	c.Start()
	s.cron = c

	s.logger.Info("sweeper started", "schedule", schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
