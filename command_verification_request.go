package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// VerificationRequestHandler issues verification tokens and mails the
// redemption link.
type VerificationRequestHandler struct {
	repo     RepositoryManager
	tokens   TokenIssuer
	notifier Notifier
	links    LinkBuilder
	activity ActivitySink
	logger   Logger
}

func NewVerificationRequestHandler(repo RepositoryManager, tokens TokenIssuer, notifier Notifier, links LinkBuilder) *VerificationRequestHandler {
	return &VerificationRequestHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		links:    links,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *VerificationRequestHandler) WithActivitySink(sink ActivitySink) *VerificationRequestHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *VerificationRequestHandler) WithLogger(logger Logger) *VerificationRequestHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// Issue generates a fresh token for user, stores it and sends the link. A
// previously issued token stops working. Accounts verified in the meantime
// get no token and no mail.
func (h *VerificationRequestHandler) Issue(ctx context.Context, user *User) error {
	if user == nil {
		return ErrNotFound
	}

	token, err := h.tokens.Issue()
	if err != nil {
		return err
	}

	if err := h.repo.Users().SetVerificationToken(ctx, user.ID, token); err != nil {
		if IsNotFound(err) {
			h.logger.Debug("verification token not issued", "user_id", user.ID.String())
			return nil
		}
		return err
	}
	user.VerificationToken = &token

	if err := h.notifier.SendVerification(ctx, user.Email, h.links.VerificationLink(token)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send verification email").
			WithCode(goerrors.CodeInternal).
			WithTextCode(TextCodeInternal)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventVerificationSent,
		Actor:     ActorRef{Type: "system"},
		UserID:    user.ID.String(),
	})

	return nil
}

type ResendVerificationMessage struct {
	Email string `json:"email"`
}

func (e ResendVerificationMessage) Type() string { return "user.verification.resend" }

// ResendVerificationHandler re-issues a token for an unverified account.
// Unknown and already verified emails succeed silently.
type ResendVerificationHandler struct {
	repo         RepositoryManager
	verification *VerificationRequestHandler
}

func NewResendVerificationHandler(repo RepositoryManager, verification *VerificationRequestHandler) *ResendVerificationHandler {
	return &ResendVerificationHandler{
		repo:         repo,
		verification: verification,
	}
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during verification resend")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().FindByEmail(ctx, event.Email)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}

	if user.IsVerified {
		return nil
	}

	return h.verification.Issue(ctx, user)
}

type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(user *User)
}

func (e VerifyEmailMessage) Type() string { return "user.verification.redeem" }

// VerifyEmailHandler redeems verification tokens
type VerifyEmailHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

func NewVerifyEmailHandler(repo RepositoryManager) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().RedeemVerificationToken(ctx, event.Token)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute account verification")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
