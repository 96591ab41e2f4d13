package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AdminUsersHandler runs the admin operations on users. Every method checks
// the actor against the access policy before touching the store.
type AdminUsersHandler struct {
	repo     RepositoryManager
	sessions SessionManager
	hasher   PasswordHasher
	policy   *AccessPolicy
	activity ActivitySink
	logger   Logger
}

func NewAdminUsersHandler(repo RepositoryManager, sessions SessionManager, hasher PasswordHasher, policy *AccessPolicy) *AdminUsersHandler {
	return &AdminUsersHandler{
		repo:     repo,
		sessions: sessions,
		hasher:   hasher,
		policy:   policy,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *AdminUsersHandler) WithActivitySink(sink ActivitySink) *AdminUsersHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *AdminUsersHandler) WithLogger(logger Logger) *AdminUsersHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// ListUsers returns every user
func (h *AdminUsersHandler) ListUsers(ctx context.Context, actor *User) ([]*User, error) {
	ctx, cancel, err := h.begin(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer cancel()

	return h.repo.Users().List(ctx)
}

// DeleteUser removes the user and ends all of their sessions
func (h *AdminUsersHandler) DeleteUser(ctx context.Context, actor *User, id uuid.UUID) error {
	ctx, cancel, err := h.begin(ctx, actor)
	if err != nil {
		return err
	}
	defer cancel()

	if err := h.repo.Users().Delete(ctx, id); err != nil {
		return err
	}

	// sessions of a deleted user no longer resolve, this only reclaims them
	if h.sessions != nil {
		if err := h.sessions.EndAll(ctx, id); err != nil {
			h.logger.Warn("unable to end sessions of deleted user", "user", id.String(), "error", err)
		}
	}

	h.record(ctx, actor, ActivityEventAdminUserDeleted, id)
	return nil
}

// ForceVerify marks the user verified and drops any pending token
func (h *AdminUsersHandler) ForceVerify(ctx context.Context, actor *User, id uuid.UUID) (*User, error) {
	ctx, cancel, err := h.begin(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer cancel()

	user, err := h.repo.Users().Update(ctx, id, UserUpdate{
		IsVerified:             boolPtr(true),
		ClearVerificationToken: true,
	})
	if err != nil {
		return nil, err
	}

	h.record(ctx, actor, ActivityEventAdminUserVerified, id)
	return user, nil
}

// ForceResetPassword replaces the password and clears any reset token
func (h *AdminUsersHandler) ForceResetPassword(ctx context.Context, actor *User, id uuid.UUID, newPassword string) (*User, error) {
	ctx, cancel, err := h.begin(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer cancel()

	hash, err := h.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	user, err := h.repo.Users().Update(ctx, id, UserUpdate{
		PasswordHash:    strPtr(hash),
		ClearResetToken: true,
	})
	if err != nil {
		return nil, err
	}

	h.record(ctx, actor, ActivityEventAdminPasswordReset, id)
	return user, nil
}

func (h *AdminUsersHandler) begin(ctx context.Context, actor *User) (context.Context, context.CancelFunc, error) {
	select {
	case <-ctx.Done():
		return nil, nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during admin operation")
	default:
	}

	if err := h.policy.RequireAdmin(ctx, actor); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	return ctx, cancel, nil
}

func (h *AdminUsersHandler) record(ctx context.Context, actor *User, eventType ActivityEventType, target uuid.UUID) {
	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: eventType,
		Actor: ActorRef{
			ID:   actor.ID.String(),
			Type: "admin",
		},
		UserID: target.String(),
	})
}
