package auth_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auth "github.com/vaultx/vaultx-auth"
)

func TestFinalizePasswordResetHandlerEmitsActivity(t *testing.T) {
	ctx := context.Background()
	repo := setupRepositories(t)
	hasher := newTestHasher()
	sink := &MockActivitySink{}

	user, err := repo.Users().Create(ctx, "reset@example.com", "old-digest")
	require.NoError(t, err)
	require.NoError(t, repo.Users().SetResetToken(ctx, user.ID, "reset-token", time.Now().Add(time.Hour)))

	handler := auth.NewFinalizePasswordResetHandler(repo, hasher).
		WithActivitySink(sink).
		WithLogger(silentLogger{})

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt auth.ActivityEvent) bool {
		return evt.EventType == auth.ActivityEventPasswordResetSuccess &&
			evt.UserID == user.ID.String()
	})).Return(nil).Once()

	err = handler.Execute(ctx, auth.FinalizePasswordResetMesasge{
		Token:    "reset-token",
		Password: "new-password",
	})
	require.NoError(t, err)

	updated, err := repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, hasher.Verify("new-password", updated.PasswordHash))
	assert.Nil(t, updated.ResetToken)

	sink.AssertExpectations(t)
}

func TestFinalizePasswordResetHandlerRejects(t *testing.T) {
	ctx := context.Background()
	repo := setupRepositories(t)
	hasher := newTestHasher()

	user, err := repo.Users().Create(ctx, "expired@example.com", "old-digest")
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, repo.Users().SetResetToken(ctx, user.ID, "expired-token", now.Add(-time.Second)))

	handler := auth.NewFinalizePasswordResetHandler(repo, hasher).
		WithLogger(silentLogger{}).
		WithClock(func() time.Time { return now })

	tests := []struct {
		name    string
		event   auth.FinalizePasswordResetMesasge
		wantErr error
	}{
		{
			name:    "expired token",
			event:   auth.FinalizePasswordResetMesasge{Token: "expired-token", Password: "new-password"},
			wantErr: auth.ErrInvalidOrExpiredToken,
		},
		{
			name:    "unknown token",
			event:   auth.FinalizePasswordResetMesasge{Token: "unknown", Password: "new-password"},
			wantErr: auth.ErrInvalidOrExpiredToken,
		},
		{
			name:    "empty token",
			event:   auth.FinalizePasswordResetMesasge{Password: "new-password"},
			wantErr: auth.ErrInvalidOrExpiredToken,
		},
		{
			name:    "empty password",
			event:   auth.FinalizePasswordResetMesasge{Token: "expired-token"},
			wantErr: auth.ErrNoEmptyString,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.Execute(ctx, tt.event)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	found, err := repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "old-digest", found.PasswordHash)
}

func TestFinalizePasswordResetHandlerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := auth.NewFinalizePasswordResetHandler(setupRepositories(t), newTestHasher())
	err := handler.Execute(ctx, auth.FinalizePasswordResetMesasge{Token: "x", Password: "y"})

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryOperation, richErr.Category)
}
