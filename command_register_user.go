package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type RegisterUserMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	repo         RepositoryManager
	hasher       PasswordHasher
	verification *VerificationRequestHandler
	activity     ActivitySink
	logger       Logger
}

// NewRegisterUserHandler creates a handler. verification may be nil, no
// verification mail is sent then.
func NewRegisterUserHandler(repo RepositoryManager, hasher PasswordHasher, verification *VerificationRequestHandler) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:         repo,
		hasher:       hasher,
		verification: verification,
		activity:     noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := NormalizeEmail(event.Email)
	if email == "" {
		return goerrors.New("email is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	hash, err := h.hasher.Hash(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user, err := h.repo.Users().Create(ctx, email, hash)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	// the account exists at this point, a failed mail is recoverable through
	// resend-verification so it does not fail the registration
	if h.verification != nil {
		if err := h.verification.Issue(ctx, user); err != nil {
			h.logger.Error("verification dispatch failed", "user", user.ID.String(), "error", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
