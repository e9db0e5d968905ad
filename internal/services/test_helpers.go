package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/models"
	"github.com/ttrenholm/gatehouse/internal/registry"
	pkgauth "github.com/ttrenholm/gatehouse/pkg/auth"
	pkglogger "github.com/ttrenholm/gatehouse/pkg/logger"
)

var errStoreUnavailable = errors.New("session store unavailable")

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(newTestLogger())
}

// noDelay keeps the anti-enumeration sleep out of tests.
func noDelay() *auth.TimingDelay {
	return auth.NewTimingDelay(auth.TimingConfig{})
}

// MockAccountStore implements AccountStore for testing
type MockAccountStore struct {
	GetByIDFunc                func(ctx context.Context, id string) (*models.Account, error)
	GetByUsernameFunc          func(ctx context.Context, username string) (*models.Account, error)
	GetByEmailFunc             func(ctx context.Context, email string) (*models.Account, error)
	CreateFunc                 func(ctx context.Context, account *models.Account) (*models.Account, error)
	RecordLoginFailureFunc     func(ctx context.Context, id string, failedCount int, failedAt time.Time, locked bool, lockExpiresAt *time.Time) error
	ClearLoginFailuresFunc     func(ctx context.Context, id string) error
	ClearExpiredLockFunc       func(ctx context.Context, id string) error
	SetTwoFactorCodeFunc       func(ctx context.Context, id, codeHash string, expiresAt time.Time) error
	ClearTwoFactorCodeFunc     func(ctx context.Context, id string, resetFailures bool) error
	RecordTwoFactorFailureFunc func(ctx context.Context, id string, failedCount int, locked bool, lockExpiresAt *time.Time) error
	UpdatePasswordFunc         func(ctx context.Context, id, passwordHash string, history []string, changedAt time.Time) error
	UpdateStatusFunc           func(ctx context.Context, id, status string) error
}

func (m *MockAccountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountStore) RecordLoginFailure(ctx context.Context, id string, failedCount int, failedAt time.Time, locked bool, lockExpiresAt *time.Time) error {
	if m.RecordLoginFailureFunc != nil {
		return m.RecordLoginFailureFunc(ctx, id, failedCount, failedAt, locked, lockExpiresAt)
	}
	return nil
}

func (m *MockAccountStore) ClearLoginFailures(ctx context.Context, id string) error {
	if m.ClearLoginFailuresFunc != nil {
		return m.ClearLoginFailuresFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountStore) ClearExpiredLock(ctx context.Context, id string) error {
	if m.ClearExpiredLockFunc != nil {
		return m.ClearExpiredLockFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountStore) UpdateStatus(ctx context.Context, id, status string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockAccountStore) SetTwoFactorCode(ctx context.Context, id, codeHash string, expiresAt time.Time) error {
	if m.SetTwoFactorCodeFunc != nil {
		return m.SetTwoFactorCodeFunc(ctx, id, codeHash, expiresAt)
	}
	return nil
}

func (m *MockAccountStore) ClearTwoFactorCode(ctx context.Context, id string, resetFailures bool) error {
	if m.ClearTwoFactorCodeFunc != nil {
		return m.ClearTwoFactorCodeFunc(ctx, id, resetFailures)
	}
	return nil
}

func (m *MockAccountStore) RecordTwoFactorFailure(ctx context.Context, id string, failedCount int, locked bool, lockExpiresAt *time.Time) error {
	if m.RecordTwoFactorFailureFunc != nil {
		return m.RecordTwoFactorFailureFunc(ctx, id, failedCount, locked, lockExpiresAt)
	}
	return nil
}

func (m *MockAccountStore) UpdatePassword(ctx context.Context, id, passwordHash string, history []string, changedAt time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash, history, changedAt)
	}
	return nil
}

// memAccountStore is a stateful AccountStore over a map. The multi-step
// lockout scenarios need updates from one call visible to the next, which a
// function-field mock can't express without a lot of wiring.
type memAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account // keyed by ID
}

func newMemAccountStore(accounts ...*models.Account) *memAccountStore {
	s := &memAccountStore{accounts: make(map[string]*models.Account)}
	for _, a := range accounts {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		s.accounts[a.ID] = a
	}
	return s
}

func (s *memAccountStore) get(id string) (*models.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAccountStore) GetByID(_ context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *memAccountStore) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.accounts {
		if a.Username == username {
			return s.get(id)
		}
	}
	return nil, models.ErrNotFound
}

func (s *memAccountStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.accounts {
		if a.Email == email {
			return s.get(id)
		}
	}
	return nil, models.ErrNotFound
}

func (s *memAccountStore) Create(_ context.Context, account *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return account, nil
}

func (s *memAccountStore) RecordLoginFailure(_ context.Context, id string, failedCount int, failedAt time.Time, locked bool, lockExpiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.FailedLoginCount = failedCount
	a.LastFailedLoginAt = &failedAt
	a.Locked = locked
	a.LockExpiresAt = lockExpiresAt
	return nil
}

func (s *memAccountStore) ClearLoginFailures(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.FailedLoginCount = 0
	a.LastFailedLoginAt = nil
	a.Locked = false
	a.LockExpiresAt = nil
	return nil
}

func (s *memAccountStore) ClearExpiredLock(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.FailedLoginCount = 0
	a.LastFailedLoginAt = nil
	a.Locked = false
	a.LockExpiresAt = nil
	a.TwoFactorFailedCount = 0
	return nil
}

func (s *memAccountStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.Status = status
	return nil
}

func (s *memAccountStore) SetTwoFactorCode(_ context.Context, id, codeHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.TwoFactorCodeHash = &codeHash
	a.TwoFactorCodeExpiresAt = &expiresAt
	return nil
}

func (s *memAccountStore) ClearTwoFactorCode(_ context.Context, id string, resetFailures bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.TwoFactorCodeHash = nil
	a.TwoFactorCodeExpiresAt = nil
	if resetFailures {
		a.TwoFactorFailedCount = 0
	}
	return nil
}

func (s *memAccountStore) RecordTwoFactorFailure(_ context.Context, id string, failedCount int, locked bool, lockExpiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.TwoFactorFailedCount = failedCount
	a.Locked = locked
	a.LockExpiresAt = lockExpiresAt
	return nil
}

func (s *memAccountStore) UpdatePassword(_ context.Context, id, passwordHash string, history []string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.PasswordHistory = history
	a.PasswordChangedAt = &changedAt
	return nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendTwoFactorCodeFunc func(ctx context.Context, email, code string) error

	mu        sync.Mutex
	SentCodes []string
}

func (m *MockEmailService) SendTwoFactorCode(ctx context.Context, email, code string) error {
	m.mu.Lock()
	m.SentCodes = append(m.SentCodes, code)
	m.mu.Unlock()
	if m.SendTwoFactorCodeFunc != nil {
		return m.SendTwoFactorCodeFunc(ctx, email, code)
	}
	return nil
}

func (m *MockEmailService) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SentCodes) == 0 {
		return ""
	}
	return m.SentCodes[len(m.SentCodes)-1]
}

// MockAttemptRecorder implements AttemptRecorder for testing
type MockAttemptRecorder struct {
	RecordFunc func(ctx context.Context, attempt *models.LoginAttempt) error

	mu       sync.Mutex
	Attempts []*models.LoginAttempt
}

func (m *MockAttemptRecorder) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	m.Attempts = append(m.Attempts, attempt)
	m.mu.Unlock()
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	return nil
}

func (m *MockAttemptRecorder) Outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcomes := make([]string, 0, len(m.Attempts))
	for _, a := range m.Attempts {
		outcomes = append(outcomes, a.Outcome)
	}
	return outcomes
}

// memSessionStore is an in-memory registry.SessionStore. TTLs are tracked
// against the injected clock so expiry can be simulated without sleeping.
type memSessionStore struct {
	mu        sync.Mutex
	values    map[string]string
	expiries  map[string]time.Time
	Published [][]byte
	FailSet   bool
	FailDel   bool
	FailKeys  bool

	Now func() time.Time
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		values:   make(map[string]string),
		expiries: make(map[string]time.Time),
		Now:      time.Now,
	}
}

func (s *memSessionStore) expired(key string) bool {
	exp, ok := s.expiries[key]
	return ok && !s.Now().Before(exp)
}

func (s *memSessionStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if s.FailSet {
		return errStoreUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	if ttl > 0 {
		s.expiries[key] = s.Now().Add(ttl)
	}
	return nil
}

func (s *memSessionStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok || s.expired(key) {
		return "", registry.ErrKeyNotFound
	}
	return v, nil
}

func (s *memSessionStore) Del(_ context.Context, key string) error {
	if s.FailDel {
		return errStoreUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.expiries, key)
	return nil
}

func (s *memSessionStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok || s.expired(key) {
		return false, nil
	}
	s.expiries[key] = s.Now().Add(ttl)
	return true, nil
}

func (s *memSessionStore) KeysByPrefix(_ context.Context, prefix string) ([]string, error) {
	if s.FailKeys {
		return nil, errStoreUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix && !s.expired(k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *memSessionStore) Publish(_ context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Published = append(s.Published, payload)
	return nil
}

func (s *memSessionStore) Subscribe(_ context.Context, channel string) (registry.Subscription, error) {
	return nil, errStoreUnavailable
}

// fakeClock is a manually advanced time source shared across the services
// under test, so lock windows and TTLs can be crossed without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// NewTestAccount creates an active account with the given password hashed.
func NewTestAccount(username, password string) *models.Account {
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return &models.Account{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Status:       models.StatusActive,
	}
}
