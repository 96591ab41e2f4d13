package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	// DefaultSessionCookie is the cookie that carries the session id
	DefaultSessionCookie = "vaultx_session"

	localsUserKey    = "auth.user"
	localsSessionKey = "auth.session"
)

// CookieConfig controls how the session cookie is written
type CookieConfig struct {
	Name     string
	Secure   bool
	Domain   string
	Path     string
	SameSite string
}

// RouteAuthenticator binds the session manager to fiber requests. It reads
// the session cookie, resolves the principal and exposes guards for routes.
type RouteAuthenticator struct {
	sessions       SessionManager
	policy         *AccessPolicy
	cookie         CookieConfig
	cookieDuration time.Duration
	clock          Clock
	Debug          bool
	Logger         Logger
	ErrorHandler   func(c *fiber.Ctx, err error) error
}

// RouteAuthenticatorOption configures a RouteAuthenticator
type RouteAuthenticatorOption func(*RouteAuthenticator)

// WithCookieConfig overrides the session cookie settings
func WithCookieConfig(cfg CookieConfig) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if cfg.Name == "" {
			cfg.Name = DefaultSessionCookie
		}
		if cfg.Path == "" {
			cfg.Path = "/"
		}
		if cfg.SameSite == "" {
			cfg.SameSite = fiber.CookieSameSiteLaxMode
		}
		a.cookie = cfg
	}
}

// WithCookieDuration sets the cookie lifetime, it should match the session TTL
func WithCookieDuration(d time.Duration) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if d > 0 {
			a.cookieDuration = d
		}
	}
}

// WithRouteLogger sets the logger
func WithRouteLogger(logger Logger) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		a.Logger = normalizeLogger(logger)
	}
}

// WithRouteClock overrides the clock used for cookie expiry
func WithRouteClock(clock Clock) RouteAuthenticatorOption {
	return func(a *RouteAuthenticator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// NewHTTPAuthenticator returns a RouteAuthenticator for the given session
// manager and policy
func NewHTTPAuthenticator(sessions SessionManager, policy *AccessPolicy, opts ...RouteAuthenticatorOption) *RouteAuthenticator {
	a := &RouteAuthenticator{
		sessions:       sessions,
		policy:         policy,
		cookieDuration: DefaultSessionTTL,
		clock:          defaultClock,
		Logger:         defLogger{},
		cookie: CookieConfig{
			Name:     DefaultSessionCookie,
			Secure:   true,
			Path:     "/",
			SameSite: fiber.CookieSameSiteLaxMode,
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	a.ErrorHandler = a.defaultErrHandler

	return a
}

// CookieName returns the name of the session cookie
func (a *RouteAuthenticator) CookieName() string {
	return a.cookie.Name
}

// Policy returns the access policy used by the guards
func (a *RouteAuthenticator) Policy() *AccessPolicy {
	return a.policy
}

// SessionMiddleware resolves the session cookie into the request principal.
// Requests without a valid session continue anonymously and a stale cookie
// is cleared.
func (a *RouteAuthenticator) SessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := utils.CopyString(c.Cookies(a.cookie.Name))
		if sessionID == "" {
			return c.Next()
		}

		user, err := a.sessions.Resolve(c.UserContext(), sessionID)
		if err != nil {
			if !errors.IsCategory(err, errors.CategoryAuth) {
				a.Logger.Error("session resolve failed", "error", err)
			}
			a.clearCookie(c)
			return c.Next()
		}

		c.Locals(localsUserKey, user)
		c.Locals(localsSessionKey, sessionID)

		ctx := WithContext(c.UserContext(), user)
		ctx = WithSessionContext(ctx, sessionID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// RequireAuth rejects requests without a principal
func (a *RouteAuthenticator) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := UserFromFiber(c); !ok {
			return a.ErrorHandler(c, ErrUnauthenticated)
		}
		return c.Next()
	}
}

// RequireAdmin rejects requests whose principal is not on the admin list.
// Anonymous requests get the same 403 as members.
func (a *RouteAuthenticator) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, _ := UserFromFiber(c)
		if err := a.policy.RequireAdmin(c.UserContext(), user); err != nil {
			return a.ErrorHandler(c, err)
		}
		return c.Next()
	}
}

// Login starts a session for user and writes the cookie. A session already
// carried by the request is ended first.
func (a *RouteAuthenticator) Login(c *fiber.Ctx, user *User) error {
	if user == nil {
		return ErrUnauthenticated
	}

	if current := c.Cookies(a.cookie.Name); current != "" {
		if err := a.sessions.End(c.UserContext(), current); err != nil {
			a.Logger.Warn("failed to end previous session", "error", err)
		}
	}

	sessionID, err := a.sessions.Start(c.UserContext(), user.ID)
	if err != nil {
		a.Logger.Error("session start failed", "user_id", user.ID, "error", err)
		return err
	}

	a.setCookie(c, sessionID)
	c.Locals(localsUserKey, user)
	c.Locals(localsSessionKey, sessionID)

	return nil
}

// Logout ends the current session, if any, and clears the cookie
func (a *RouteAuthenticator) Logout(c *fiber.Ctx) error {
	sessionID := utils.CopyString(c.Cookies(a.cookie.Name))
	a.clearCookie(c)
	if sessionID == "" {
		return nil
	}
	return a.sessions.End(c.UserContext(), sessionID)
}

// UserFromFiber returns the principal resolved by SessionMiddleware
func UserFromFiber(c *fiber.Ctx) (*User, bool) {
	user, ok := c.Locals(localsUserKey).(*User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

func (a *RouteAuthenticator) setCookie(c *fiber.Ctx, val string) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cookie.Name,
		Value:    val,
		Path:     a.cookie.Path,
		Domain:   a.cookie.Domain,
		Expires:  a.clock().Add(a.cookieDuration),
		HTTPOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: a.cookie.SameSite,
	})
}

func (a *RouteAuthenticator) clearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cookie.Name,
		Value:    "",
		Path:     a.cookie.Path,
		Domain:   a.cookie.Domain,
		Expires:  a.clock().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: a.cookie.SameSite,
	})
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	return RenderError(c, a.Logger, a.Debug, err)
}

// RenderError writes err as a JSON body. Structured errors keep their code
// and message, anything else is reported as a generic 500.
func RenderError(c *fiber.Ctx, logger Logger, debug bool, err error) error {
	logger = normalizeLogger(logger)

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal).
			WithTextCode(TextCodeInternal)
	}

	status := statusFor(richErr)

	if status >= http.StatusInternalServerError || richErr.Category == errors.CategoryInternal {
		logger.Error(
			"request failed",
			"path", c.OriginalURL(),
			"error", err,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "An unexpected server error occurred",
			"code":  TextCodeInternal,
		})
	}

	if debug {
		logger.Debug(
			"request rejected",
			"path", c.OriginalURL(),
			"error", richErr.Message,
			"category", richErr.Category,
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	body := fiber.Map{
		"error": richErr.Message,
		"code":  richErr.TextCode,
	}
	if len(richErr.ValidationErrors) > 0 {
		body["validation"] = richErr.ValidationErrors
	}

	return c.Status(status).JSON(body)
}

func statusFor(richErr *errors.Error) int {
	if richErr.Code != 0 {
		return richErr.Code
	}
	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
