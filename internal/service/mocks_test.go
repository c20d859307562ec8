package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tzesh/EcommerceAPI/internal/auth"
	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/internal/repository"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByUsernameAndTelephone(ctx context.Context, username, telephone string) (*domain.User, error) {
	args := m.Called(ctx, username, telephone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) OwnerOf(ctx context.Context, field repository.UniqueField, value string) (string, error) {
	args := m.Called(ctx, field, value)
	return args.String(0), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) UpdateRevokingTokens(ctx context.Context, user *domain.User) (int64, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockUserRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Token Repository ---

type mockTokenRepository struct {
	mock.Mock
}

func (m *mockTokenRepository) GetByToken(ctx context.Context, token string) (*domain.Token, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Token), args.Error(1)
}

func (m *mockTokenRepository) RevokeAllValid(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTokenRepository) Save(ctx context.Context, token *domain.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockTokenRepository) Rotate(ctx context.Context, userID string, token *domain.Token) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *mockTokenRepository) Renew(ctx context.Context, userID, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

// --- Mock Login Limiter ---

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Check(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *mockLimiter) RecordFailure(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *mockLimiter) Reset(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *mockLimiter) RetryAfter(ctx context.Context, username string) time.Duration {
	return m.Called(ctx, username).Get(0).(time.Duration)
}

// --- Recording Event Publisher ---

type recordedEvent struct {
	kind   string
	userID string
	actor  string
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (r *recordingEvents) add(kind, userID, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: kind, userID: userID, actor: actor})
	return r.err
}

func (r *recordingEvents) PublishUserRegistered(_ context.Context, u *domain.User) error {
	return r.add("registered", u.ID, u.Username)
}

func (r *recordingEvents) PublishUserUpdated(_ context.Context, u *domain.User, actor string) error {
	return r.add("updated", u.ID, actor)
}

func (r *recordingEvents) PublishRoleChanged(_ context.Context, u *domain.User, _ domain.Role, actor string) error {
	return r.add("role_changed", u.ID, actor)
}

func (r *recordingEvents) PublishUserDeleted(_ context.Context, u *domain.User, actor string) error {
	return r.add("deleted", u.ID, actor)
}

func (r *recordingEvents) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

// --- Test Helpers ---

const testAuthorizationKey = "test-authorization-key"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestTokenManager() *auth.TokenManager {
	return auth.NewTokenManager("test-secret-key-for-testing-purposes", "auth-service", 15*time.Minute, 7*24*time.Hour)
}

func newTestHasher(t *testing.T) *auth.PasswordHasher {
	t.Helper()
	h, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func hashFor(t *testing.T, h *auth.PasswordHasher, password string) string {
	t.Helper()
	hash, err := h.Hash(password)
	require.NoError(t, err)
	return hash
}
