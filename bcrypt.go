package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// FederatedPasswordHash is stored for accounts provisioned through a
// federated provider. It is not a bcrypt digest so it never verifies.
const FederatedPasswordHash = "!federated"

// DefaultPasswordCost is the bcrypt work factor used when none is configured
const DefaultPasswordCost = 10

// BcryptHasher implements PasswordHasher with bcrypt
type BcryptHasher struct {
	cost  int
	dummy []byte
}

// NewBcryptHasher returns a hasher using cost, out of range values fall back
// to the build default. The dummy digest used for malformed digests is never
// cheaper than the build default, so a low cost hasher still spends the time
// a default cost digest would.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("vaultx-timing-equaliser"), max(cost, passwordHashCost()))
	if err != nil {
		panic("auth: unable to build dummy bcrypt digest: " + err.Error())
	}
	return &BcryptHasher{cost: cost, dummy: dummy}
}

// Hash will generate a password hash
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	d, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	return string(d), err
}

// Verify reports whether password matches digest. Malformed digests are
// checked against the dummy digest.
func (h *BcryptHasher) Verify(password, digest string) bool {
	if _, err := bcrypt.Cost([]byte(digest)); err != nil {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
