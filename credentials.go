package auth

import (
	"context"
	"strings"
)

// Credentials is what a caller presents to Authenticate. The concrete
// variants are PasswordCredentials and FederatedAssertion.
type Credentials interface {
	credentials()
}

// PasswordCredentials is an email and plaintext password pair
type PasswordCredentials struct {
	Email    string
	Password string
}

func (PasswordCredentials) credentials() {}

// FederatedAssertion is a provider vouching for an email. Subject is the
// provider's stable user id.
type FederatedAssertion struct {
	Provider string
	Subject  string
	Email    string
}

func (FederatedAssertion) credentials() {}

func (f FederatedAssertion) providerName() string {
	if p := strings.TrimSpace(f.Provider); p != "" {
		return strings.ToLower(p)
	}
	return "federated"
}

// FederatedFlow runs an external identity provider handshake. Begin returns
// the consent URL to redirect to, Complete turns the callback parameters
// into an assertion the Authenticator can accept.
type FederatedFlow interface {
	Begin(ctx context.Context, provider string) (string, error)
	Complete(ctx context.Context, provider, code, state string) (FederatedAssertion, error)
}
