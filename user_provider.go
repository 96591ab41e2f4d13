package auth

import (
	"context"
)

// UserProvider checks local credentials against the credential store
type UserProvider struct {
	store     Users
	hasher    PasswordHasher
	Validator func(*User) error
	logger    Logger
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store Users, hasher PasswordHasher) *UserProvider {
	return &UserProvider{
		store:  store,
		hasher: hasher,
		logger: defLogger{},
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

func (u *UserProvider) validate(user *User) error {
	if u.Validator != nil {
		return u.Validator(user)
	}
	return nil
}

// VerifyPassword finds the user by email and compares password. Unknown
// emails and wrong passwords both return ErrInvalidCredentials and cost one
// bcrypt comparison each. A correct password on an unverified account
// returns ErrEmailNotVerified.
func (u *UserProvider) VerifyPassword(ctx context.Context, email, password string) (*User, error) {
	user, err := u.store.FindByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			// malformed digest, runs the dummy comparison
			u.hasher.Verify(password, "")
			return nil, ErrInvalidCredentials
		}
		return nil, internalError(err, "failed to retrieve user during verification")
	}

	if !u.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		return nil, ErrEmailNotVerified
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return user, nil
}

// FederatedProvider provisions users vouched for by an external provider
type FederatedProvider struct {
	store  Users
	logger Logger
}

func NewFederatedProvider(store Users) *FederatedProvider {
	return &FederatedProvider{
		store:  store,
		logger: defLogger{},
	}
}

func (f *FederatedProvider) WithLogger(l Logger) *FederatedProvider {
	f.logger = normalizeLogger(l)
	return f
}

// Provision returns the user owning assertion.Email, creating a verified
// account with the federated sentinel hash when none exists. Existing
// accounts are returned unchanged. The bool reports creation.
func (f *FederatedProvider) Provision(ctx context.Context, assertion FederatedAssertion) (*User, bool, error) {
	email := NormalizeEmail(assertion.Email)
	if email == "" {
		return nil, false, ErrInvalidCredentials
	}

	user, created, err := f.store.GetOrCreate(ctx, &User{
		Email:        email,
		PasswordHash: FederatedPasswordHash,
		IsVerified:   true,
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		f.logger.Info("federated account provisioned", "provider", assertion.providerName(), "user", user.ID.String())
	}

	return user, created, nil
}
