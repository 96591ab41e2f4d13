package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/vaultx/vaultx-auth"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher() *auth.BcryptHasher {
	return auth.NewBcryptHasher(bcrypt.MinCost)
}

func TestAuthenticatePassword(t *testing.T) {
	ctx := context.Background()
	hasher := newTestHasher()

	digest, err := hasher.Hash("password123")
	require.NoError(t, err)

	verified := &auth.User{ID: uuid.New(), Email: "test@example.com", PasswordHash: digest, IsVerified: true}
	unverified := &auth.User{ID: uuid.New(), Email: "new@example.com", PasswordHash: digest}
	federated := &auth.User{ID: uuid.New(), Email: "fed@example.com", PasswordHash: auth.FederatedPasswordHash, IsVerified: true}

	tests := []struct {
		name     string
		email    string
		password string
		setup    func(m *MockUsers)
		want     *auth.User
		wantErr  error
		event    auth.ActivityEventType
	}{
		{
			name:     "Successful login",
			email:    "Test@Example.com ",
			password: "password123",
			setup: func(m *MockUsers) {
				m.On("FindByEmail", mock.Anything, "test@example.com").Return(verified, nil).Once()
			},
			want:  verified,
			event: auth.ActivityEventLoginSuccess,
		},
		{
			name:     "Wrong password",
			email:    "test@example.com",
			password: "wrong",
			setup: func(m *MockUsers) {
				m.On("FindByEmail", mock.Anything, "test@example.com").Return(verified, nil).Once()
			},
			wantErr: auth.ErrInvalidCredentials,
			event:   auth.ActivityEventLoginFailure,
		},
		{
			name:     "Unknown email",
			email:    "nobody@example.com",
			password: "password123",
			setup: func(m *MockUsers) {
				m.On("FindByEmail", mock.Anything, "nobody@example.com").Return(nil, auth.ErrNotFound).Once()
			},
			wantErr: auth.ErrInvalidCredentials,
			event:   auth.ActivityEventLoginFailure,
		},
		{
			name:     "Unverified account with correct password",
			email:    "new@example.com",
			password: "password123",
			setup: func(m *MockUsers) {
				m.On("FindByEmail", mock.Anything, "new@example.com").Return(unverified, nil).Once()
			},
			wantErr: auth.ErrEmailNotVerified,
			event:   auth.ActivityEventLoginFailure,
		},
		{
			name:     "Unverified account with wrong password",
			email:    "new@example.com",
			password: "nope",
			setup: func(m *MockUsers) {
				m.On("FindByEmail", mock.Anything, "new@example.com").Return(unverified, nil).Once()
			},
			wantErr: auth.ErrInvalidCredentials,
			event:   auth.ActivityEventLoginFailure,
		},
		{
			name:     "Federated account rejects password login",
			email:    "fed@example.com",
			password: auth.FederatedPasswordHash,
			setup: func(m *MockUsers) {
				m.On("FindByEmail", mock.Anything, "fed@example.com").Return(federated, nil).Once()
			},
			wantErr: auth.ErrInvalidCredentials,
			event:   auth.ActivityEventLoginFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUsers)
			tt.setup(users)

			recorder := &eventRecorder{}
			authenticator := auth.NewAuthenticator(users, hasher).
				WithLogger(silentLogger{}).
				WithActivitySink(recorder.Sink())

			user, err := authenticator.Authenticate(ctx, auth.PasswordCredentials{
				Email:    tt.email,
				Password: tt.password,
			})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want.ID, user.ID)
			}

			assert.Equal(t, tt.event, recorder.Last().EventType)
			users.AssertExpectations(t)
		})
	}
}

func TestAuthenticatePasswordStoreFailure(t *testing.T) {
	users := new(MockUsers)
	users.On("FindByEmail", mock.Anything, "test@example.com").
		Return(nil, errors.New("connection refused")).Once()

	authenticator := auth.NewAuthenticator(users, newTestHasher()).WithLogger(silentLogger{})

	_, err := authenticator.Authenticate(context.Background(), auth.PasswordCredentials{
		Email:    "test@example.com",
		Password: "password123",
	})

	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInternal))
	assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestAuthenticateFederated(t *testing.T) {
	ctx := context.Background()

	t.Run("provisions a verified account", func(t *testing.T) {
		users := new(MockUsers)
		created := &auth.User{ID: uuid.New(), Email: "fed@example.com", PasswordHash: auth.FederatedPasswordHash, IsVerified: true}

		users.On("GetOrCreate", mock.Anything, mock.MatchedBy(func(u *auth.User) bool {
			return u.Email == "fed@example.com" &&
				u.IsVerified &&
				u.PasswordHash == auth.FederatedPasswordHash
		})).Return(created, true, nil).Once()

		recorder := &eventRecorder{}
		authenticator := auth.NewAuthenticator(users, newTestHasher()).
			WithLogger(silentLogger{}).
			WithActivitySink(recorder.Sink())

		user, err := authenticator.Authenticate(ctx, auth.FederatedAssertion{
			Provider: "Google",
			Subject:  "g-123",
			Email:    " FED@example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)

		last := recorder.Last()
		assert.Equal(t, auth.ActivityEventSocialLogin, last.EventType)
		assert.Equal(t, "google", last.Provider)
		assert.Equal(t, true, last.Metadata["created"])
		users.AssertExpectations(t)
	})

	t.Run("reuses an existing account unchanged", func(t *testing.T) {
		users := new(MockUsers)
		existing := &auth.User{ID: uuid.New(), Email: "local@example.com", PasswordHash: "$2a$local", IsVerified: false}
		users.On("GetOrCreate", mock.Anything, mock.Anything).Return(existing, false, nil).Once()

		authenticator := auth.NewAuthenticator(users, newTestHasher()).WithLogger(silentLogger{})

		user, err := authenticator.Authenticate(ctx, &auth.FederatedAssertion{Provider: "google", Email: "local@example.com"})
		require.NoError(t, err)
		assert.Same(t, existing, user)
		assert.Equal(t, "$2a$local", user.PasswordHash)
	})

	t.Run("empty email is rejected", func(t *testing.T) {
		users := new(MockUsers)
		authenticator := auth.NewAuthenticator(users, newTestHasher()).WithLogger(silentLogger{})

		_, err := authenticator.Authenticate(ctx, auth.FederatedAssertion{Provider: "google", Subject: "x"})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		users.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
	})
}

func TestAuthenticateUnsupportedCredentials(t *testing.T) {
	authenticator := auth.NewAuthenticator(new(MockUsers), newTestHasher()).WithLogger(silentLogger{})

	_, err := authenticator.Authenticate(context.Background(), nil)
	require.Error(t, err)

	var nilCreds *auth.PasswordCredentials
	_, err = authenticator.Authenticate(context.Background(), nilCreds)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}
