package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// Auther verifies Credentials and returns the authenticated user
type Auther struct {
	local        *UserProvider
	federated    *FederatedProvider
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(users Users, hasher PasswordHasher) *Auther {
	return &Auther{
		local:        NewUserProvider(users, hasher),
		federated:    NewFederatedProvider(users),
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	s.local.WithLogger(logger)
	s.federated.WithLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithValidator adds an extra check run after a password matched
func (s *Auther) WithValidator(validator func(*User) error) *Auther {
	s.local.Validator = validator
	return s
}

// Authenticate dispatches on the credentials variant
func (s *Auther) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	switch c := creds.(type) {
	case PasswordCredentials:
		return s.authenticatePassword(ctx, c)
	case *PasswordCredentials:
		if c == nil {
			return nil, ErrInvalidCredentials
		}
		return s.authenticatePassword(ctx, *c)
	case FederatedAssertion:
		return s.authenticateFederated(ctx, c)
	case *FederatedAssertion:
		if c == nil {
			return nil, ErrInvalidCredentials
		}
		return s.authenticateFederated(ctx, *c)
	default:
		return nil, goerrors.New("unsupported credentials", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
}

func (s *Auther) authenticatePassword(ctx context.Context, creds PasswordCredentials) (*User, error) {
	email := NormalizeEmail(creds.Email)

	user, err := s.local.VerifyPassword(ctx, email, creds.Password)
	if err != nil {
		s.logger.Debug("login rejected", "email", email, "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", "", map[string]any{
			"reason": reasonFor(err),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, actorFromUser(user), user.ID.String(), "", nil)
	return user, nil
}

func (s *Auther) authenticateFederated(ctx context.Context, assertion FederatedAssertion) (*User, error) {
	provider := assertion.providerName()

	user, created, err := s.federated.Provision(ctx, assertion)
	if err != nil {
		s.logger.Error("federated login failed", "provider", provider, "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", provider, map[string]any{
			"reason": reasonFor(err),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventSocialLogin, actorFromUser(user), user.ID.String(), provider, map[string]any{
		"created": created,
	})
	return user, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID, provider string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	recordActivity(ctx, normalizeActivitySink(s.activitySink), s.logger, ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Provider:  provider,
		Metadata:  metadata,
	})
}

func actorFromUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   user.ID.String(),
		Type: "user",
	}
}

func reasonFor(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr.TextCode
	}
	return TextCodeInternal
}
