package social

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStateKey = []byte("0123456789abcdef0123456789abcdef")

func TestStateManager_EncodeDecode(t *testing.T) {
	sm, err := NewJWTStateManager(testStateKey, 10*time.Minute)
	require.NoError(t, err)

	encoded, err := sm.Encode(&OAuthState{
		Provider:     "google",
		CodeVerifier: "test-verifier",
	})
	require.NoError(t, err)
	assert.NotContains(t, encoded, "test-verifier")

	decoded, err := sm.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, "google", decoded.Provider)
	assert.Equal(t, "test-verifier", decoded.CodeVerifier)
	assert.NotEmpty(t, decoded.ID)
}

func TestStateManager_ExpiredState(t *testing.T) {
	now := time.Now()
	sm, err := NewJWTStateManager(testStateKey, time.Minute, WithStateClock(func() time.Time { return now }))
	require.NoError(t, err)

	encoded, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = sm.Decode(encoded)
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestStateManager_RejectsTampering(t *testing.T) {
	sm, err := NewJWTStateManager(testStateKey, time.Minute)
	require.NoError(t, err)

	other, err := NewJWTStateManager([]byte("fedcba9876543210fedcba9876543210"), time.Minute)
	require.NoError(t, err)

	encoded, err := other.Encode(&OAuthState{Provider: "google", CodeVerifier: "v"})
	require.NoError(t, err)

	_, err = sm.Decode(encoded)
	assert.ErrorIs(t, err, ErrInvalidState)

	parts := strings.Split(encoded, ".")
	require.Len(t, parts, 3)
	_, err = sm.Decode(parts[0] + "." + parts[1] + ".")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = sm.Decode("")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateManager_ShortKey(t *testing.T) {
	_, err := NewJWTStateManager([]byte("short"), time.Minute)
	assert.Error(t, err)
}

func TestCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", computeCodeChallenge(verifier))
}
