package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
	auth "github.com/vaultx/vaultx-auth"
)

// MockUsers implements auth.Users
type MockUsers struct {
	mock.Mock
}

var _ auth.Users = (*MockUsers)(nil)

func userOrNil(v any) *auth.User {
	if v == nil {
		return nil
	}
	return v.(*auth.User)
}

func (m *MockUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *MockUsers) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	args := m.Called(ctx, id)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *MockUsers) List(ctx context.Context) ([]*auth.User, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, email, passwordHash string) (*auth.User, error) {
	args := m.Called(ctx, email, passwordHash)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, email, passwordHash string) (*auth.User, error) {
	return m.Create(ctx, email, passwordHash)
}

func (m *MockUsers) GetOrCreate(ctx context.Context, record *auth.User) (*auth.User, bool, error) {
	args := m.Called(ctx, record)
	return userOrNil(args.Get(0)), args.Bool(1), args.Error(2)
}

func (m *MockUsers) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *auth.User) (*auth.User, bool, error) {
	return m.GetOrCreate(ctx, record)
}

func (m *MockUsers) Update(ctx context.Context, id uuid.UUID, update auth.UserUpdate) (*auth.User, error) {
	args := m.Called(ctx, id, update)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *MockUsers) UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, update auth.UserUpdate) (*auth.User, error) {
	return m.Update(ctx, id, update)
}

func (m *MockUsers) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUsers) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return m.Delete(ctx, id)
}

func (m *MockUsers) SetVerificationToken(ctx context.Context, id uuid.UUID, token string) error {
	args := m.Called(ctx, id, token)
	return args.Error(0)
}

func (m *MockUsers) SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string) error {
	return m.SetVerificationToken(ctx, id, token)
}

func (m *MockUsers) RedeemVerificationToken(ctx context.Context, token string) (*auth.User, error) {
	args := m.Called(ctx, token)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *MockUsers) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error {
	args := m.Called(ctx, id, token, expiry)
	return args.Error(0)
}

func (m *MockUsers) RedeemResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*auth.User, error) {
	args := m.Called(ctx, token, passwordHash, now)
	return userOrNil(args.Get(0)), args.Error(1)
}

func (m *MockUsers) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// CapturingNotifier records every message it is asked to send
type CapturingNotifier struct {
	mu            sync.Mutex
	Verifications []SentLink
	Resets        []SentLink
	Err           error
}

type SentLink struct {
	Email string
	Link  string
}

func (n *CapturingNotifier) SendVerification(ctx context.Context, email, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Verifications = append(n.Verifications, SentLink{Email: email, Link: link})
	return nil
}

func (n *CapturingNotifier) SendPasswordReset(ctx context.Context, email, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Resets = append(n.Resets, SentLink{Email: email, Link: link})
	return nil
}

func (n *CapturingNotifier) LastVerification() (SentLink, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Verifications) == 0 {
		return SentLink{}, false
	}
	return n.Verifications[len(n.Verifications)-1], true
}

func (n *CapturingNotifier) LastReset() (SentLink, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Resets) == 0 {
		return SentLink{}, false
	}
	return n.Resets[len(n.Resets)-1], true
}

// eventRecorder collects activity events
type eventRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *eventRecorder) Sink() auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, event)
		return nil
	})
}

func (r *eventRecorder) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *eventRecorder) Last() auth.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return auth.ActivityEvent{}
	}
	return r.events[len(r.events)-1]
}

type silentLogger struct{}

func (silentLogger) Debug(string, ...any) {}
func (silentLogger) Info(string, ...any)  {}
func (silentLogger) Warn(string, ...any)  {}
func (silentLogger) Error(string, ...any) {}

// MockActivitySink implements auth.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
