package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SessionRecords is the SQL backed SessionStore
type SessionRecords interface {
	SessionStore
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRecords struct {
	db *bun.DB
}

var _ SessionRecords = (*sessionRecords)(nil)

func NewSessionsRepository(db *bun.DB) SessionRecords {
	return &sessionRecords{db: db}
}

func (s *sessionRecords) Save(ctx context.Context, record *SessionRecord) error {
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("last_seen_at = EXCLUDED.last_seen_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return internalError(err, "unable to save session")
	}
	return nil
}

func (s *sessionRecords) Get(ctx context.Context, id string) (*SessionRecord, error) {
	record := &SessionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, internalError(err, "unable to load session")
	}
	return record, nil
}

func (s *sessionRecords) Touch(ctx context.Context, id string, seenAt, expiresAt time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*SessionRecord)(nil)).
		Set("last_seen_at = ?", seenAt.UTC()).
		Set("expires_at = ?", expiresAt.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return internalError(err, "unable to touch session")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *sessionRecords) Delete(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().
		Model((*SessionRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return internalError(err, "unable to delete session")
	}
	return nil
}

func (s *sessionRecords) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.NewDelete().
		Model((*SessionRecord)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return internalError(err, "unable to delete user sessions")
	}
	return nil
}

// DeleteExpired removes every session whose expiry is at or before now
func (s *sessionRecords) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*SessionRecord)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, internalError(err, "unable to delete expired sessions")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, internalError(err, "unable to delete expired sessions")
	}
	return n, nil
}
