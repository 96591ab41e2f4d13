package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultResetTokenTTL is how long a reset link stays valid
const DefaultResetTokenTTL = time.Hour

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Email     string
	ExpiresAt time.Time
	// Dispatched is false when the email is unknown and unknown emails are hidden
	Dispatched bool
}

type InitializePasswordResetHandler struct {
	repo        RepositoryManager
	tokens      TokenIssuer
	notifier    Notifier
	links       LinkBuilder
	ttl         time.Duration
	hideUnknown bool
	now         Clock
	activity    ActivitySink
	logger      Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, tokens TokenIssuer, notifier Notifier, links LinkBuilder) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		links:    links,
		ttl:      DefaultResetTokenTTL,
		now:      defaultClock,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithTTL sets the reset token lifetime, non positive values are ignored
func (h *InitializePasswordResetHandler) WithTTL(ttl time.Duration) *InitializePasswordResetHandler {
	if ttl > 0 {
		h.ttl = ttl
	}
	return h
}

// WithHideUnknownEmails makes unknown emails succeed without sending
// anything instead of returning ErrNotFound.
func (h *InitializePasswordResetHandler) WithHideUnknownEmails(hide bool) *InitializePasswordResetHandler {
	h.hideUnknown = hide
	return h
}

func (h *InitializePasswordResetHandler) WithClock(clock Clock) *InitializePasswordResetHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{
		Email: NormalizeEmail(event.Email),
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.issue(ctx, resp)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func (h *InitializePasswordResetHandler) issue(ctx context.Context, resp *InitializePasswordResetResponse) error {
	user, err := h.repo.Users().FindByEmail(ctx, resp.Email)
	if err != nil {
		if IsNotFound(err) && h.hideUnknown {
			return nil
		}
		return err
	}

	token, err := h.tokens.Issue()
	if err != nil {
		return err
	}

	resp.ExpiresAt = h.now().Add(h.ttl)
	if err := h.repo.Users().SetResetToken(ctx, user.ID, token, resp.ExpiresAt); err != nil {
		return err
	}

	if err := h.notifier.SendPasswordReset(ctx, user.Email, h.links.ResetLink(token)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send password reset email").
			WithCode(goerrors.CodeInternal).
			WithTextCode(TextCodeInternal)
	}

	resp.Dispatched = true

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		Actor:     ActorRef{Type: "unknown"},
		UserID:    user.ID.String(),
	})

	return nil
}
