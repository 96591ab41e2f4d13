package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// AccessPolicy answers authorization questions for a principal. The admin
// allow-list is fixed at construction.
type AccessPolicy struct {
	admins   map[string]struct{}
	logger   Logger
	activity ActivitySink
}

// AccessPolicyOption configures AccessPolicy
type AccessPolicyOption func(*AccessPolicy)

func WithPolicyLogger(logger Logger) AccessPolicyOption {
	return func(p *AccessPolicy) {
		p.logger = normalizeLogger(logger)
	}
}

func WithPolicyActivitySink(sink ActivitySink) AccessPolicyOption {
	return func(p *AccessPolicy) {
		p.activity = normalizeActivitySink(sink)
	}
}

// NewAccessPolicy builds a policy from admin emails. Entries go through
// NormalizeEmail like every stored email, empty entries are dropped.
func NewAccessPolicy(adminEmails []string, opts ...AccessPolicyOption) *AccessPolicy {
	p := &AccessPolicy{
		admins:   make(map[string]struct{}, len(adminEmails)),
		logger:   defLogger{},
		activity: noopActivitySink{},
	}

	for _, email := range adminEmails {
		email = NormalizeEmail(email)
		if email == "" {
			continue
		}
		p.admins[email] = struct{}{}
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// ParseAdminList splits a comma separated allow-list
func ParseAdminList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsSelf reports whether principal owns the resource
func (p *AccessPolicy) IsSelf(principal *User, ownerID uuid.UUID) bool {
	if principal == nil || principal.ID == uuid.Nil {
		return false
	}
	return principal.ID == ownerID
}

// IsAdmin reports whether principal is on the allow-list
func (p *AccessPolicy) IsAdmin(principal *User) bool {
	if p == nil || principal == nil {
		return false
	}
	_, ok := p.admins[principal.Email]
	return ok
}

// RoleFor returns the derived role of principal
func (p *AccessPolicy) RoleFor(principal *User) UserRole {
	if p.IsAdmin(principal) {
		return RoleAdmin
	}
	return RoleMember
}

// RequireAdmin returns ErrForbidden unless principal is an admin
func (p *AccessPolicy) RequireAdmin(ctx context.Context, principal *User) error {
	if p.IsAdmin(principal) {
		return nil
	}
	p.deny(ctx, principal, "admin")
	return ErrForbidden
}

// RequireSelfOrAdmin returns ErrForbidden unless principal owns the
// resource or is an admin.
func (p *AccessPolicy) RequireSelfOrAdmin(ctx context.Context, principal *User, ownerID uuid.UUID) error {
	if p.IsSelf(principal, ownerID) || p.IsAdmin(principal) {
		return nil
	}
	p.deny(ctx, principal, "self_or_admin")
	return ErrForbidden
}

func (p *AccessPolicy) deny(ctx context.Context, principal *User, rule string) {
	if p == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventAccessDenied,
		Metadata:  map[string]any{"rule": rule},
	}
	if principal != nil {
		event.UserID = principal.ID.String()
	}

	p.logger.Debug("access denied", "rule", rule, "user", event.UserID)
	recordActivity(ctx, p.activity, p.logger, event)
}
