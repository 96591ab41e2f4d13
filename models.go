package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email             string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash      string     `bun:"password_hash,notnull" json:"-"`
	IsVerified        bool       `bun:"is_verified,notnull" json:"isVerified"`
	VerificationToken *string    `bun:"verification_token" json:"-"`
	ResetToken        *string    `bun:"reset_token" json:"-"`
	ResetTokenExpiry  *time.Time `bun:"reset_token_expiry" json:"-"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// HasPendingVerification reports whether a verification token is outstanding
func (u *User) HasPendingVerification() bool {
	return u != nil && !u.IsVerified && u.VerificationToken != nil
}

// ResetTokenValid reports whether the stored reset token can still be
// redeemed at now.
func (u *User) ResetTokenValid(now time.Time) bool {
	if u == nil || u.ResetToken == nil || u.ResetTokenExpiry == nil {
		return false
	}
	return u.ResetTokenExpiry.After(now)
}

// UserUpdate is a partial update. Nil fields are left untouched; the Clear*
// flags set the matching columns to NULL.
type UserUpdate struct {
	PasswordHash           *string
	IsVerified             *bool
	VerificationToken      *string
	ClearVerificationToken bool
	ResetToken             *string
	ResetTokenExpiry       *time.Time
	ClearResetToken        bool
}

// SessionRecord binds an opaque id to a user id
type SessionRecord struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            string    `bun:"id,pk" json:"id"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	LastSeenAt    time.Time `bun:"last_seen_at,notnull" json:"last_seen_at"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
}

// Expired reports whether the record is past its expiry at now
func (s *SessionRecord) Expired(now time.Time) bool {
	return s == nil || !s.ExpiresAt.After(now)
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}
