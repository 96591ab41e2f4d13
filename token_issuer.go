package auth

import (
	"crypto/rand"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultTokenBytes is the entropy of verification and reset tokens
const DefaultTokenBytes = 32

// RandomTokenIssuer mints hex encoded tokens from crypto/rand
type RandomTokenIssuer struct {
	size int
}

// NewRandomTokenIssuer returns an issuer producing size random bytes per
// token. Sizes under 16 fall back to DefaultTokenBytes.
func NewRandomTokenIssuer(size int) *RandomTokenIssuer {
	if size < 16 {
		size = DefaultTokenBytes
	}
	return &RandomTokenIssuer{size: size}
}

// Issue returns a fresh token
func (r *RandomTokenIssuer) Issue() (string, error) {
	buf := make([]byte, r.size)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to read random bytes").
			WithCode(goerrors.CodeInternal).
			WithTextCode(TextCodeInternal)
	}
	return hex.EncodeToString(buf), nil
}
