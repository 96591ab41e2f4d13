package social

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	auth "github.com/vaultx/vaultx-auth"
)

// SocialAuthenticator runs the authorization code flow with PKCE for the
// registered providers and turns a successful callback into an
// auth.FederatedAssertion.
type SocialAuthenticator struct {
	providers            map[string]SocialProvider
	stateManager         StateManager
	requireVerifiedEmail bool
	logger               auth.Logger
}

var _ auth.FederatedFlow = (*SocialAuthenticator)(nil)

// SocialAuthOption configures the social authenticator.
type SocialAuthOption func(*SocialAuthenticator)

// NewSocialAuthenticator creates a social authenticator. Provider emails
// must be verified unless WithUnverifiedEmails is given.
func NewSocialAuthenticator(stateManager StateManager, opts ...SocialAuthOption) *SocialAuthenticator {
	sa := &SocialAuthenticator{
		providers:            make(map[string]SocialProvider),
		stateManager:         stateManager,
		requireVerifiedEmail: true,
		logger:               nopLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	return sa
}

// WithProvider registers a social provider.
func WithProvider(provider SocialProvider) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if provider == nil {
			return
		}
		sa.providers[strings.ToLower(provider.Name())] = provider
	}
}

// WithUnverifiedEmails accepts profiles whose email the provider has not
// verified.
func WithUnverifiedEmails() SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		sa.requireVerifiedEmail = false
	}
}

// WithLogger sets the logger
func WithLogger(logger auth.Logger) SocialAuthOption {
	return func(sa *SocialAuthenticator) {
		if logger != nil {
			sa.logger = logger
		}
	}
}

// Providers returns the registered provider names in order
func (sa *SocialAuthenticator) Providers() []string {
	names := make([]string, 0, len(sa.providers))
	for name := range sa.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Begin starts the OAuth flow and returns the consent URL.
func (sa *SocialAuthenticator) Begin(ctx context.Context, providerName string) (string, error) {
	provider, err := sa.provider(providerName)
	if err != nil {
		return "", err
	}

	if sa.stateManager == nil {
		return "", ErrInvalidState
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}

	stateToken, err := sa.stateManager.Encode(&OAuthState{
		Provider:     provider.Name(),
		CodeVerifier: codeVerifier,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}

	return provider.AuthCodeURL(stateToken, WithPKCE(computeCodeChallenge(codeVerifier), "S256")), nil
}

// Complete validates the state, exchanges the code and resolves the profile.
func (sa *SocialAuthenticator) Complete(ctx context.Context, providerName, code, stateToken string) (auth.FederatedAssertion, error) {
	provider, err := sa.provider(providerName)
	if err != nil {
		return auth.FederatedAssertion{}, err
	}

	if sa.stateManager == nil {
		return auth.FederatedAssertion{}, ErrInvalidState
	}

	state, err := sa.stateManager.Decode(stateToken)
	if err != nil {
		if errors.Is(err, ErrStateExpired) {
			return auth.FederatedAssertion{}, ErrStateExpired
		}
		return auth.FederatedAssertion{}, ErrInvalidState
	}

	if !strings.EqualFold(state.Provider, provider.Name()) {
		sa.logger.Warn("oauth state provider mismatch", "expected", provider.Name(), "state", state.Provider)
		return auth.FederatedAssertion{}, ErrInvalidState
	}

	if strings.TrimSpace(code) == "" {
		return auth.FederatedAssertion{}, ErrMissingCode
	}

	token, err := provider.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		return auth.FederatedAssertion{}, wrapProviderError(ErrTokenExchangeFailed, provider.Name(), "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return auth.FederatedAssertion{}, wrapProviderError(ErrUserInfoFailed, provider.Name(), "user_info", err)
	}

	if profile == nil || strings.TrimSpace(profile.Email) == "" {
		return auth.FederatedAssertion{}, ErrMissingEmail
	}

	if sa.requireVerifiedEmail && !profile.EmailVerified {
		sa.logger.Info("provider email not verified", "provider", provider.Name(), "subject", profile.ProviderUserID)
		return auth.FederatedAssertion{}, ErrEmailNotVerified
	}

	return auth.FederatedAssertion{
		Provider: provider.Name(),
		Subject:  profile.ProviderUserID,
		Email:    auth.NormalizeEmail(profile.Email),
	}, nil
}

func (sa *SocialAuthenticator) provider(name string) (SocialProvider, error) {
	provider, ok := sa.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return provider, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
