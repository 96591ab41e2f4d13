package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	auth "github.com/vaultx/vaultx-auth"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return s, rdb
}

func newRecord(id string, userID uuid.UUID, now time.Time, ttl time.Duration) *auth.SessionRecord {
	return &auth.SessionRecord{
		ID:         id,
		UserID:     userID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestStoreSaveGet(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	now := time.Now().UTC().Truncate(time.Second)
	store := New(rdb, WithPrefix("test"), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, store.Save(ctx, newRecord("s1", userID, now, time.Hour)))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))

	assert.True(t, mr.Exists("test:session:s1"))
	assert.Equal(t, time.Hour, mr.TTL("test:session:s1"))

	members, err := mr.Members("test:user:" + userID.String() + ":sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)
}

func TestStoreExpiresWithTTL(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	now := time.Now().UTC()
	store := New(rdb, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newRecord("s1", uuid.New(), now, time.Minute)))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "s1")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeSessionNotFound))
}

func TestStoreSaveExpiredRecordDeletes(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	now := time.Now().UTC()
	store := New(rdb, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	record := newRecord("s1", uuid.New(), now, time.Minute)
	require.NoError(t, store.Save(ctx, record))

	record.ExpiresAt = now.Add(-time.Second)
	require.NoError(t, store.Save(ctx, record))
	assert.False(t, mr.Exists(DefaultPrefix+":session:s1"))
}

func TestStoreTouch(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	now := time.Now().UTC().Truncate(time.Second)
	store := New(rdb, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newRecord("s1", uuid.New(), now, time.Minute)))

	seen := now.Add(30 * time.Second)
	require.NoError(t, store.Touch(ctx, "s1", seen, now.Add(time.Hour)))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.LastSeenAt.Equal(seen))
	assert.Equal(t, time.Hour, mr.TTL(DefaultPrefix+":session:s1"))

	err = store.Touch(ctx, "missing", seen, now.Add(time.Hour))
	assert.True(t, auth.HasTextCode(err, auth.TextCodeSessionNotFound))
}

func TestStoreDelete(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	now := time.Now().UTC()
	store := New(rdb, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, store.Save(ctx, newRecord("s1", userID, now, time.Hour)))
	require.NoError(t, store.Save(ctx, newRecord("s2", userID, now, time.Hour)))

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err := store.Get(ctx, "s1")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeSessionNotFound))

	members, err := mr.Members(DefaultPrefix + ":user:" + userID.String() + ":sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, members)

	assert.NoError(t, store.Delete(ctx, "unknown"))
}

func TestStoreDeleteByUser(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	now := time.Now().UTC()
	store := New(rdb, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	owner, other := uuid.New(), uuid.New()
	require.NoError(t, store.Save(ctx, newRecord("a1", owner, now, time.Hour)))
	require.NoError(t, store.Save(ctx, newRecord("a2", owner, now, time.Hour)))
	require.NoError(t, store.Save(ctx, newRecord("b1", other, now, time.Hour)))

	require.NoError(t, store.DeleteByUser(ctx, owner))

	assert.False(t, mr.Exists(DefaultPrefix+":session:a1"))
	assert.False(t, mr.Exists(DefaultPrefix+":session:a2"))
	assert.False(t, mr.Exists(DefaultPrefix+":user:"+owner.String()+":sessions"))

	_, err := store.Get(ctx, "b1")
	assert.NoError(t, err)

	assert.NoError(t, store.DeleteByUser(ctx, uuid.New()))
}

func TestStoreRejectsEmptyRecord(t *testing.T) {
	_, rdb := newMiniRedis(t)
	store := New(rdb)
	assert.Error(t, store.Save(context.Background(), nil))
	assert.Error(t, store.Save(context.Background(), &auth.SessionRecord{}))
}

func TestStoreSurfacesConnectionErrors(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	store := New(rdb)
	mr.Close()

	_, err := store.Get(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, "SESSION_STORE_ERROR"))
}
