package social

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultStateTTL bounds how long a user can sit on the consent screen
	DefaultStateTTL = 10 * time.Minute

	stateIssuer  = "vaultx-auth/social"
	minStateKey  = 32
	sealKeyLabel = "oauth-state-seal:"
)

// StateManager handles OAuth state encoding and verification.
type StateManager interface {
	Encode(state *OAuthState) (string, error)
	Decode(token string) (*OAuthState, error)
}

// OAuthState is carried through the provider round trip in the state
// parameter. CodeVerifier is sealed before it leaves the server.
type OAuthState struct {
	Provider     string `json:"p"`
	CodeVerifier string `json:"cv,omitempty"`
	jwt.RegisteredClaims
}

// JWTStateManager signs state as an HS256 JWT. The PKCE verifier is
// encrypted with AES-GCM under a key derived from the signing key.
type JWTStateManager struct {
	signingKey []byte
	sealKey    [32]byte
	ttl        time.Duration
	clock      func() time.Time
}

// StateOption configures a JWTStateManager
type StateOption func(*JWTStateManager)

// WithStateClock overrides the clock used for issuing and validating state
func WithStateClock(clock func() time.Time) StateOption {
	return func(sm *JWTStateManager) {
		if clock != nil {
			sm.clock = clock
		}
	}
}

// NewJWTStateManager creates a state manager. The key must be at least 32
// bytes.
func NewJWTStateManager(signingKey []byte, ttl time.Duration, opts ...StateOption) (*JWTStateManager, error) {
	if len(signingKey) < minStateKey {
		return nil, fmt.Errorf("state signing key must be at least %d bytes", minStateKey)
	}

	if ttl == 0 {
		ttl = DefaultStateTTL
	}

	sm := &JWTStateManager{
		signingKey: signingKey,
		sealKey:    sha256.Sum256(append([]byte(sealKeyLabel), signingKey...)),
		ttl:        ttl,
		clock:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm, nil
}

// Encode seals the verifier and signs the state.
func (sm *JWTStateManager) Encode(state *OAuthState) (string, error) {
	if state == nil || state.Provider == "" {
		return "", ErrInvalidState
	}

	now := sm.clock()
	claims := *state
	claims.Issuer = stateIssuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(sm.ttl))
	if claims.ID == "" {
		claims.ID = generateNonce()
	}

	if claims.CodeVerifier != "" {
		sealed, err := sm.seal(claims.CodeVerifier)
		if err != nil {
			return "", err
		}
		claims.CodeVerifier = sealed
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(sm.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}

	return signed, nil
}

// Decode verifies the signature and expiry, then opens the verifier.
func (sm *JWTStateManager) Decode(raw string) (*OAuthState, error) {
	if raw == "" {
		return nil, ErrInvalidState
	}

	state := &OAuthState{}
	_, err := jwt.ParseWithClaims(raw, state, func(t *jwt.Token) (any, error) {
		return sm.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sm.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrInvalidState
	}

	if state.CodeVerifier != "" {
		verifier, err := sm.open(state.CodeVerifier)
		if err != nil {
			return nil, ErrInvalidState
		}
		state.CodeVerifier = verifier
	}

	return state, nil
}

func (sm *JWTStateManager) seal(plaintext string) (string, error) {
	gcm, err := sm.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

func (sm *JWTStateManager) open(sealed string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}

	gcm, err := sm.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", ErrInvalidState
	}

	nonce, encrypted := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func (sm *JWTStateManager) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(sm.sealKey[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}

func generateNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func computeCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
