package auth

// UserRole is derived at request time, it is never stored
type UserRole = string

const (
	// RoleMember is any authenticated user
	RoleMember UserRole = "member"
	// RoleAdmin is a user whose email is on the admin allow-list
	RoleAdmin UserRole = "admin"
)
