package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultSessionTTL is the sliding lifetime of a session
const DefaultSessionTTL = 7 * 24 * time.Hour

// Sessions implements SessionManager over a SessionStore, with an optional
// cache store consulted first on Resolve.
type Sessions struct {
	users    Users
	store    SessionStore
	cache    SessionStore
	ids      TokenIssuer
	ttl      time.Duration
	now      Clock
	logger   Logger
	activity ActivitySink
}

var _ SessionManager = (*Sessions)(nil)

// SessionsOption configures Sessions
type SessionsOption func(*Sessions)

// WithSessionCache puts cache in front of the backing store
func WithSessionCache(cache SessionStore) SessionsOption {
	return func(s *Sessions) {
		s.cache = cache
	}
}

// WithSessionTTL sets the sliding lifetime, non positive values are ignored
func WithSessionTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithSessionClock(clock Clock) SessionsOption {
	return func(s *Sessions) {
		if clock != nil {
			s.now = clock
		}
	}
}

func WithSessionLogger(logger Logger) SessionsOption {
	return func(s *Sessions) {
		s.logger = normalizeLogger(logger)
	}
}

func WithSessionIDIssuer(ids TokenIssuer) SessionsOption {
	return func(s *Sessions) {
		if ids != nil {
			s.ids = ids
		}
	}
}

func WithSessionActivitySink(sink ActivitySink) SessionsOption {
	return func(s *Sessions) {
		s.activity = normalizeActivitySink(sink)
	}
}

// NewSessions returns a session manager. users is consulted on every
// Resolve so a deleted user can not keep a live session.
func NewSessions(users Users, store SessionStore, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		users:    users,
		store:    store,
		ids:      NewRandomTokenIssuer(DefaultTokenBytes),
		ttl:      DefaultSessionTTL,
		now:      defaultClock,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// TTL returns the sliding lifetime
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Start creates a session for userID and returns its id
func (s *Sessions) Start(ctx context.Context, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", goerrors.New("user id is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	id, err := s.ids.Issue()
	if err != nil {
		return "", err
	}

	now := s.now()
	record := &SessionRecord{
		ID:         id,
		UserID:     userID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}

	if err := s.store.Save(ctx, record); err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Save(ctx, record); err != nil {
			s.logger.Warn("session cache save failed", "error", err)
		}
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventSessionStarted,
		UserID:     userID.String(),
		OccurredAt: now,
	})

	return id, nil
}

// Resolve returns the live user behind sessionID. Expired sessions and
// sessions whose user no longer exists are ended and reported as
// ErrSessionNotFound.
func (s *Sessions) Resolve(ctx context.Context, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	record, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if record.Expired(now) {
		s.endQuietly(ctx, sessionID)
		return nil, ErrSessionNotFound
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if IsNotFound(err) {
			s.endQuietly(ctx, sessionID)
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	expiresAt := now.Add(s.ttl)
	if err := s.store.Touch(ctx, sessionID, now, expiresAt); err != nil {
		if HasTextCode(err, TextCodeSessionNotFound) {
			s.endQuietly(ctx, sessionID)
			return nil, ErrSessionNotFound
		}
		s.logger.Warn("session touch failed", "error", err)
	}

	if s.cache != nil {
		record.LastSeenAt = now
		record.ExpiresAt = expiresAt
		if err := s.cache.Save(ctx, record); err != nil {
			s.logger.Warn("session cache refresh failed", "error", err)
		}
	}

	return user, nil
}

func (s *Sessions) lookup(ctx context.Context, sessionID string) (*SessionRecord, error) {
	if s.cache != nil {
		record, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return record, nil
		}
		if !HasTextCode(err, TextCodeSessionNotFound) {
			s.logger.Warn("session cache lookup failed", "error", err)
		}
	}
	return s.store.Get(ctx, sessionID)
}

// End removes the session from every store. Ending an unknown session is
// not an error.
func (s *Sessions) End(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, sessionID); err != nil {
			s.logger.Warn("session cache delete failed", "error", err)
		}
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventSessionEnded,
		OccurredAt: s.now(),
	})

	return nil
}

// EndAll removes every session owned by userID. The SQL store is cleared
// first; cache entries left behind fail the store touch on next use.
func (s *Sessions) EndAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.DeleteByUser(ctx, userID); err != nil {
			s.logger.Warn("session cache delete failed", "user_id", userID.String(), "error", err)
		}
	}
	return nil
}

func (s *Sessions) endQuietly(ctx context.Context, sessionID string) {
	if err := s.End(ctx, sessionID); err != nil {
		s.logger.Warn("unable to end stale session", "error", err)
	}
}
