package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	auth "github.com/vaultx/vaultx-auth"
	"github.com/vaultx/vaultx-auth/activitymap"
	"github.com/vaultx/vaultx-auth/config"
	"github.com/vaultx/vaultx-auth/logger"
	"github.com/vaultx/vaultx-auth/mailer"
	"github.com/vaultx/vaultx-auth/metrics"
	"github.com/vaultx/vaultx-auth/redisstore"
	"github.com/vaultx/vaultx-auth/social"
	"github.com/vaultx/vaultx-auth/social/providers/google"
	"github.com/vaultx/vaultx-auth/sweeper"
)

type App struct {
	config   *config.Config
	logger   *logger.Logger
	db       *bun.DB
	rdb      *redis.Client
	repo     auth.RepositoryManager
	metrics  *metrics.Collector
	activity auth.ActivitySink
	sessions *auth.Sessions
	google   *google.Provider
	sweeper  *sweeper.Sweeper
	server   router.Server[*fiber.App]
	srv      *fiber.App
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, print.MaybePrettyJSON(err))
		os.Exit(1)
	}

	app := &App{
		config:  cfg,
		logger:  logger.New(cfg.LogLevel),
		metrics: metrics.New(metrics.WithRuntimeCollectors()),
	}
	app.activity = activitymap.Fanout(app.metrics, activitymap.LogSink(app.logger))

	if cfg.Debug {
		app.logger.Debug("configuration loaded", "config", print.MaybePrettyJSON(redacted(cfg)))
	}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		app.logger.Error("persistence setup failed", "error", err)
		os.Exit(1)
	}
	defer app.db.Close()

	if err := WithSessionCache(ctx, app); err != nil {
		app.logger.Error("redis setup failed", "error", err)
		os.Exit(1)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		app.logger.Error("http setup failed", "error", err)
		os.Exit(1)
	}

	if err := WithSweeper(ctx, app); err != nil {
		app.logger.Error("sweeper setup failed", "error", err)
		os.Exit(1)
	}

	go app.server.Serve(cfg.HTTPAddr)
	app.logger.Info("http server started", "addr", cfg.HTTPAddr)

	sig := WaitExitSignal()
	app.logger.Info("shutting down", "signal", sig.String())
	app.Shutdown()
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.config.Database

	var db *bun.DB
	switch cfg.Driver {
	case config.DriverPostgres:
		sqldb, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return err
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return err
	}

	if err := auth.Migrate(ctx, db, auth.WithMigrationLogger(app.logger)); err != nil {
		return err
	}

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return err
	}

	app.db = db
	app.repo = repo
	app.logger.Info("database ready", "driver", cfg.Driver)
	return nil
}

func WithSessionCache(ctx context.Context, app *App) error {
	opts := []auth.SessionsOption{
		auth.WithSessionTTL(app.config.Session.TTL),
		auth.WithSessionLogger(app.logger),
		auth.WithSessionActivitySink(app.activity),
	}

	if app.config.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     app.config.Redis.Addr,
			Password: app.config.Redis.Password,
			DB:       app.config.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return err
		}

		app.rdb = rdb
		opts = append(opts, auth.WithSessionCache(redisstore.New(rdb)))
		app.logger.Info("session cache enabled", "addr", app.config.Redis.Addr)
	}

	app.sessions = auth.NewSessions(app.repo.Users(), app.repo.Sessions(), opts...)
	return nil
}

// newHTTPServer builds the fiber app behind the router adapter. The auth
// routes mount on the fiber app directly; the adapter serves both.
func newHTTPServer(cfg *config.Config, lgr auth.Logger) (router.Server[*fiber.App], *fiber.App, error) {
	var srv *fiber.App
	server := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		srv = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:      "vaultx-auth",
			UnescapePath: true,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				return auth.RenderError(c, lgr, cfg.Debug, err)
			},
		}))
		return srv
	})
	if srv == nil {
		return nil, nil, errors.New("router adapter did not build a fiber app")
	}

	server.Router().Get("/healthz", func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, map[string]any{"status": "ok"})
	})

	return server, srv, nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	cfg := app.config
	lgr := app.logger
	sink := app.activity

	server, srv, err := newHTTPServer(cfg, lgr)
	if err != nil {
		return err
	}

	srv.Use(recover.New())

	if len(cfg.CORSAllowedOrigins) > 0 {
		srv.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(cfg.CORSAllowedOrigins, ","),
			AllowCredentials: true,
			AllowHeaders:     "Origin, Content-Type, Accept",
		}))
	}

	srv.Get("/metrics", app.metrics.Handler())

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	tokens := auth.NewRandomTokenIssuer(auth.DefaultTokenBytes)
	links := auth.LinkBuilder{
		PublicURL:   cfg.Links.PublicURL,
		FrontendURL: cfg.Links.FrontendURL,
	}

	var notifier auth.Notifier = auth.NewLogNotifier(lgr)
	if cfg.MailEnabled() {
		notifier = mailer.New(mailer.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			User:     cfg.Mail.User,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, mailer.WithLogger(lgr))
	}

	policy := auth.NewAccessPolicy(cfg.AdminEmails,
		auth.WithPolicyLogger(lgr),
		auth.WithPolicyActivitySink(sink),
	)

	auther := auth.NewAuthenticator(app.repo.Users(), hasher).
		WithLogger(lgr).
		WithActivitySink(sink)

	routeAuth := auth.NewHTTPAuthenticator(app.sessions, policy,
		auth.WithCookieConfig(auth.CookieConfig{
			Name:     cfg.Session.CookieName,
			Secure:   cfg.Session.CookieSecure,
			Path:     "/",
			SameSite: fiber.CookieSameSiteLaxMode,
		}),
		auth.WithCookieDuration(cfg.Session.TTL),
		auth.WithRouteLogger(lgr),
	)

	verification := auth.NewVerificationRequestHandler(app.repo, tokens, notifier, links).
		WithLogger(lgr).
		WithActivitySink(sink)

	opts := []auth.AuthControllerOption{
		auth.WithControllerDebug(cfg.Debug),
		auth.WithControllerLogger(lgr),
		auth.WithRedirects(&auth.AuthControllerRedirects{
			VerifySuccess: cfg.Links.VerifySuccessURL,
			LoginSuccess:  cfg.Links.LoginSuccessURL,
			LoginFailure:  cfg.Links.LoginFailureURL,
		}),
		auth.WithAuther(auther),
		auth.WithRouteAuthenticator(routeAuth),
		auth.WithRegistration(
			auth.NewRegisterUserHandler(app.repo, hasher, verification).WithLogger(lgr).WithActivitySink(sink),
			auth.NewResendVerificationHandler(app.repo, verification),
			auth.NewVerifyEmailHandler(app.repo).WithLogger(lgr).WithActivitySink(sink),
		),
		auth.WithPasswordReset(
			auth.NewInitializePasswordResetHandler(app.repo, tokens, notifier, links).
				WithTTL(cfg.ResetTokenTTL).
				WithHideUnknownEmails(cfg.HideUnknownResetEmails).
				WithLogger(lgr).
				WithActivitySink(sink),
			auth.NewFinalizePasswordResetHandler(app.repo, hasher).WithLogger(lgr).WithActivitySink(sink),
		),
		auth.WithAdminUsers(
			auth.NewAdminUsersHandler(app.repo, app.sessions, hasher, policy).WithLogger(lgr).WithActivitySink(sink),
		),
	}

	if cfg.FederationEnabled() {
		flow, err := newFederatedFlow(app)
		if err != nil {
			return err
		}
		opts = append(opts, auth.WithFederatedFlow(flow))
	}

	auth.RegisterAuthRoutes(srv, opts...)

	app.server = server
	app.srv = srv
	return nil
}

func newFederatedFlow(app *App) (*social.SocialAuthenticator, error) {
	cfg := app.config

	states, err := social.NewJWTStateManager([]byte(cfg.StateSigningKey), social.DefaultStateTTL)
	if err != nil {
		return nil, err
	}

	app.google = google.New(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		CallbackURL:  cfg.Google.CallbackURL,
	})

	flow := social.NewSocialAuthenticator(states,
		social.WithProvider(app.google),
		social.WithLogger(app.logger),
	)
	app.logger.Info("federated login enabled", "providers", strings.Join(flow.Providers(), ","))
	return flow, nil
}

func WithSweeper(_ context.Context, app *App) error {
	app.sweeper = sweeper.New(app.repo, sweeper.WithLogger(app.logger))
	return app.sweeper.Start(app.config.SweepSchedule)
}

func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	if a.srv != nil {
		if err := a.srv.ShutdownWithContext(ctx); err != nil {
			a.logger.Warn("http shutdown failed", "error", err)
		}
	}

	if a.google != nil {
		a.google.Close()
	}

	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}

func redacted(cfg *config.Config) config.Config {
	out := *cfg
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	out.Database.DSN = mask(out.Database.DSN)
	out.Redis.Password = mask(out.Redis.Password)
	out.Mail.Password = mask(out.Mail.Password)
	out.Google.ClientSecret = mask(out.Google.ClientSecret)
	out.StateSigningKey = mask(out.StateSigningKey)
	return out
}
