// Package redisstore keeps sessions in redis so they can be resolved without
// touching the database. It implements auth.SessionStore and is meant to sit
// in front of the SQL store through auth.WithSessionCache.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	auth "github.com/vaultx/vaultx-auth"
)

// DefaultPrefix namespaces every key written by the store
const DefaultPrefix = "vaultx"

// Store is a redis backed auth.SessionStore
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	now    auth.Clock
}

var _ auth.SessionStore = (*Store)(nil)

type Option func(*Store)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock sets the clock used to compute key TTLs
func WithClock(clock auth.Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		rdb:    rdb,
		prefix: DefaultPrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *Store) userKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:user:%s:sessions", s.prefix, userID)
}

// Save writes the record with a TTL matching its expiry. Records that are
// already expired are removed instead.
func (s *Store) Save(ctx context.Context, record *auth.SessionRecord) error {
	if record == nil || record.ID == "" {
		return goerrors.New("session record is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	ttl := record.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, record.ID)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return storeError(err, "unable to encode session")
	}

	userKey := s.userKey(record.UserID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(record.ID), payload, ttl)
		pipe.SAdd(ctx, userKey, record.ID)
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return storeError(err, "unable to save session")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*auth.SessionRecord, error) {
	payload, err := s.rdb.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, storeError(err, "unable to load session")
	}

	record := &auth.SessionRecord{}
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, storeError(err, "unable to decode session")
	}
	return record, nil
}

func (s *Store) Touch(ctx context.Context, id string, seenAt, expiresAt time.Time) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	record.LastSeenAt = seenAt
	record.ExpiresAt = expiresAt
	return s.Save(ctx, record)
}

// Delete removes the session and its entry in the owner index. Unknown ids
// are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	record, err := s.Get(ctx, id)
	if err != nil && !auth.HasTextCode(err, auth.TextCodeSessionNotFound) {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(id))
		if record != nil {
			pipe.SRem(ctx, s.userKey(record.UserID), id)
		}
		return nil
	})
	if err != nil {
		return storeError(err, "unable to delete session")
	}
	return nil
}

func (s *Store) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	userKey := s.userKey(userID)
	ids, err := s.rdb.SMembers(ctx, userKey).Result()
	if err != nil {
		return storeError(err, "unable to list user sessions")
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.sessionKey(id))
	}
	keys = append(keys, userKey)

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return storeError(err, "unable to delete user sessions")
	}
	return nil
}

func storeError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithCode(goerrors.CodeInternal).
		WithTextCode("SESSION_STORE_ERROR")
}
