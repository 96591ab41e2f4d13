package auth_test

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/vaultx/vaultx-auth"
)

func TestUserProviderVerifyPassword(t *testing.T) {
	ctx := context.Background()
	hasher := newTestHasher()

	digest, err := hasher.Hash("password123")
	require.NoError(t, err)

	t.Run("Successful verification", func(t *testing.T) {
		users := new(MockUsers)
		user := &auth.User{ID: uuid.New(), Email: "test@example.com", PasswordHash: digest, IsVerified: true}
		users.On("FindByEmail", ctx, "test@example.com").Return(user, nil).Once()

		provider := auth.NewUserProvider(users, hasher).WithLogger(silentLogger{})
		got, err := provider.VerifyPassword(ctx, "test@example.com", "password123")

		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		users.AssertExpectations(t)
	})

	t.Run("Invalid password", func(t *testing.T) {
		users := new(MockUsers)
		user := &auth.User{ID: uuid.New(), Email: "test@example.com", PasswordHash: digest, IsVerified: true}
		users.On("FindByEmail", ctx, "test@example.com").Return(user, nil).Once()

		provider := auth.NewUserProvider(users, hasher)
		got, err := provider.VerifyPassword(ctx, "test@example.com", "wrong_password")

		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Nil(t, got)
	})

	t.Run("User not found", func(t *testing.T) {
		users := new(MockUsers)
		users.On("FindByEmail", ctx, "nobody@example.com").Return(nil, auth.ErrNotFound).Once()

		provider := auth.NewUserProvider(users, hasher)
		got, err := provider.VerifyPassword(ctx, "nobody@example.com", "password123")

		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Nil(t, got)
	})

	t.Run("Unverified account", func(t *testing.T) {
		users := new(MockUsers)
		user := &auth.User{ID: uuid.New(), Email: "new@example.com", PasswordHash: digest}
		users.On("FindByEmail", ctx, "new@example.com").Return(user, nil).Once()

		provider := auth.NewUserProvider(users, hasher)
		_, err := provider.VerifyPassword(ctx, "new@example.com", "password123")

		assert.ErrorIs(t, err, auth.ErrEmailNotVerified)
	})

	t.Run("Unverified account with wrong password", func(t *testing.T) {
		users := new(MockUsers)
		user := &auth.User{ID: uuid.New(), Email: "new@example.com", PasswordHash: digest}
		users.On("FindByEmail", ctx, "new@example.com").Return(user, nil).Once()

		provider := auth.NewUserProvider(users, hasher)
		_, err := provider.VerifyPassword(ctx, "new@example.com", "nope")

		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("Store failure", func(t *testing.T) {
		users := new(MockUsers)
		users.On("FindByEmail", ctx, "test@example.com").Return(nil, errors.New("database down")).Once()

		provider := auth.NewUserProvider(users, hasher)
		_, err := provider.VerifyPassword(ctx, "test@example.com", "password123")

		require.Error(t, err)
		assert.True(t, goerrors.IsInternal(err))
		assert.True(t, auth.HasTextCode(err, auth.TextCodeInternal))
	})
}

func TestUserProviderValidation(t *testing.T) {
	ctx := context.Background()
	hasher := newTestHasher()

	digest, err := hasher.Hash("password123")
	require.NoError(t, err)

	user := &auth.User{ID: uuid.New(), Email: "test@example.com", PasswordHash: digest, IsVerified: true}
	users := new(MockUsers)
	users.On("FindByEmail", ctx, "test@example.com").Return(user, nil)

	provider := auth.NewUserProvider(users, hasher)

	validationErr := errors.New("account locked")
	provider.Validator = func(u *auth.User) error {
		return validationErr
	}

	_, err = provider.VerifyPassword(ctx, "test@example.com", "password123")
	assert.ErrorIs(t, err, validationErr)

	provider.Validator = func(u *auth.User) error { return nil }
	got, err := provider.VerifyPassword(ctx, "test@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestFederatedProviderProvision(t *testing.T) {
	ctx := context.Background()

	t.Run("creates verified account", func(t *testing.T) {
		users := new(MockUsers)
		created := &auth.User{ID: uuid.New(), Email: "fed@example.com", PasswordHash: auth.FederatedPasswordHash, IsVerified: true}
		users.On("GetOrCreate", ctx, mock.MatchedBy(func(u *auth.User) bool {
			return u.Email == "fed@example.com" && u.IsVerified && u.PasswordHash == auth.FederatedPasswordHash
		})).Return(created, true, nil).Once()

		provider := auth.NewFederatedProvider(users).WithLogger(silentLogger{})
		got, isNew, err := provider.Provision(ctx, auth.FederatedAssertion{Provider: "Google", Subject: "123", Email: " Fed@Example.com"})

		require.NoError(t, err)
		assert.True(t, isNew)
		assert.Equal(t, created.ID, got.ID)
		users.AssertExpectations(t)
	})

	t.Run("returns existing account", func(t *testing.T) {
		users := new(MockUsers)
		existing := &auth.User{ID: uuid.New(), Email: "fed@example.com", PasswordHash: "local-digest"}
		users.On("GetOrCreate", ctx, mock.Anything).Return(existing, false, nil).Once()

		provider := auth.NewFederatedProvider(users).WithLogger(silentLogger{})
		got, isNew, err := provider.Provision(ctx, auth.FederatedAssertion{Provider: "google", Email: "fed@example.com"})

		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Equal(t, "local-digest", got.PasswordHash)
	})

	t.Run("rejects empty email", func(t *testing.T) {
		users := new(MockUsers)
		provider := auth.NewFederatedProvider(users)

		_, _, err := provider.Provision(ctx, auth.FederatedAssertion{Provider: "google", Email: "  "})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		users.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
	})
}

func TestIdentityPayload(t *testing.T) {
	user := &auth.User{ID: uuid.New(), Email: "id@example.com", IsVerified: true}

	payload := auth.IdentityPayload(auth.NewIdentityFromUser(user, auth.RoleAdmin))
	assert.Equal(t, map[string]any{
		"id":         user.ID.String(),
		"email":      "id@example.com",
		"isVerified": true,
		"role":       auth.RoleAdmin,
	}, payload)

	assert.Equal(t, auth.RoleMember, auth.NewIdentityFromUser(user, "").Role())
	assert.Nil(t, auth.NewIdentityFromUser(nil, auth.RoleAdmin))
	assert.Nil(t, auth.IdentityPayload(nil))
}
