package auth_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auth "github.com/vaultx/vaultx-auth"
)

func TestRandomTokenIssuer(t *testing.T) {
	issuer := auth.NewRandomTokenIssuer(0)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := issuer.Issue()
		require.NoError(t, err)
		assert.Len(t, token, auth.DefaultTokenBytes*2)

		_, err = hex.DecodeString(token)
		assert.NoError(t, err)

		assert.False(t, seen[token], "token issued twice")
		seen[token] = true
	}
}

func TestRandomTokenIssuerCustomSize(t *testing.T) {
	token, err := auth.NewRandomTokenIssuer(20).Issue()
	require.NoError(t, err)
	assert.Len(t, token, 40)
}
