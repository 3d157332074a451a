package authkit

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-authkit/persistence"
)

type testConfig struct {
	route    string
	confirm  bool
	async    bool
	domain   string
	fallback bool
}

func (c testConfig) GetRoute() string                  { return c.route }
func (c testConfig) GetRequireEmailConfirmation() bool { return c.confirm }
func (c testConfig) GetAsyncNotifications() bool       { return c.async }
func (c testConfig) GetSSOEmailDomain() string         { return c.domain }
func (c testConfig) GetLocalLoginFallback() bool       { return c.fallback }

func defaultTestConfig() testConfig {
	return testConfig{route: "auth/", confirm: true, domain: "localhost"}
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := persistence.Open(ctx, persistence.Options{
		Type: persistence.TypeSQLite,
		DSN:  "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = Migrate(ctx, db)
	require.NoError(t, err)

	return db
}

func newTestStore(t *testing.T) UserStore {
	t.Helper()
	return NewUsersRepository(newTestDB(t))
}

func newTestAccounts(t *testing.T, cfg Config) (*Accounts, *captureNotifier, UserStore) {
	t.Helper()
	store := newTestStore(t)
	notifier := &captureNotifier{}
	accounts := NewAccounts(store, cfg).
		WithHasher(NewBcryptHasher(bcrypt.MinCost)).
		WithNotifier(notifier).
		WithLinkBuilder(NewLinkBuilder("https://example.org"))
	return accounts, notifier, store
}

type memorySession struct {
	mu     sync.Mutex
	values map[string]any
}

func newMemorySession() *memorySession {
	return &memorySession{values: map[string]any{}}
}

func (s *memorySession) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if v == nil {
		return nil, false
	}
	return v, ok
}

func (s *memorySession) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

type sentMessage struct {
	Template string
	To       string
	User     User
	Params   map[string]any
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *captureNotifier) Send(_ context.Context, template string, recipient *User, params map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{
		Template: template,
		To:       recipient.Email,
		User:     *recipient,
		Params:   params,
	})
	return n.err
}

func (n *captureNotifier) last() sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentMessage{}
	}
	return n.sent[len(n.sent)-1]
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, template string, recipient *User, params map[string]any) error {
	args := m.Called(ctx, template, recipient, params)
	return args.Error(0)
}

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*User)
	return user, args.Error(1)
}

func (m *MockUserStore) FindBySSOID(ctx context.Context, ssoID string) (*User, error) {
	args := m.Called(ctx, ssoID)
	user, _ := args.Get(0).(*User)
	return user, args.Error(1)
}

func (m *MockUserStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*User)
	return user, args.Error(1)
}

func (m *MockUserStore) Insert(ctx context.Context, user *User, opts ...WriteOption) (*User, error) {
	args := m.Called(ctx, user)
	created, _ := args.Get(0).(*User)
	return created, args.Error(1)
}

func (m *MockUserStore) UpdateByID(ctx context.Context, id uuid.UUID, fields Fields, opts ...WriteOption) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

func (m *MockUserStore) UpdateByActionToken(ctx context.Context, tokens []string, fields Fields) ([]uuid.UUID, error) {
	args := m.Called(ctx, tokens, fields)
	ids, _ := args.Get(0).([]uuid.UUID)
	return ids, args.Error(1)
}

func (m *MockUserStore) CountByField(ctx context.Context, field, value string) (int, error) {
	args := m.Called(ctx, field, value)
	return args.Int(0), args.Error(1)
}

func mustRegister(t *testing.T, a *Accounts, username, email, password string) *RegisterResult {
	t.Helper()
	res, err := a.Register(context.Background(), Fields{
		FieldUsername: username,
		FieldEmail:    email,
		FieldPassword: password,
	})
	require.NoError(t, err)
	return res
}
