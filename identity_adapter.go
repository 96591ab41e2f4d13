package auth

// Identity is the public view of a user returned to clients
type Identity interface {
	ID() string
	Email() string
	IsVerified() bool
	Role() string
}

// UserIdentity adapts a User into the Identity interface.
type UserIdentity struct {
	user *User
	role UserRole
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User, role UserRole) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user, role: role}
}

// ID returns the user's ID as a string.
func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

// Email returns the user's email address.
func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

// IsVerified reports whether the user confirmed their email.
func (u UserIdentity) IsVerified() bool {
	return u.user != nil && u.user.IsVerified
}

// Role returns the derived role.
func (u UserIdentity) Role() string {
	if u.user == nil {
		return ""
	}
	if u.role == "" {
		return RoleMember
	}
	return u.role
}

// IdentityPayload renders an Identity as the JSON body used by the HTTP layer
func IdentityPayload(identity Identity) map[string]any {
	if identity == nil {
		return nil
	}
	return map[string]any{
		"id":         identity.ID(),
		"email":      identity.Email(),
		"isVerified": identity.IsVerified(),
		"role":       identity.Role(),
	}
}
