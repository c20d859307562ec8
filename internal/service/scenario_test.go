package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tzesh/EcommerceAPI/internal/auth"
	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/internal/repository/memory"
	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
)

type memoryEnv struct {
	store  *memory.Store
	users  *memory.UserRepository
	tokens *memory.TokenRepository
	auth   *AuthService
	user   *UserService
}

func newMemoryEnv(t *testing.T) *memoryEnv {
	t.Helper()
	store := memory.NewStore()
	users := memory.NewUserRepository(store)
	tokens := memory.NewTokenRepository(store)
	hasher := newTestHasher(t)
	return &memoryEnv{
		store:  store,
		users:  users,
		tokens: tokens,
		auth: NewAuthService(users, tokens, newTestTokenManager(), hasher,
			auth.NewSecretGate(testAuthorizationKey), newTestLogger()),
		user: NewUserService(users, hasher, newTestLogger()),
	}
}

func (e *memoryEnv) register(t *testing.T, in RegisterInput) (*domain.User, *domain.TokenPair) {
	t.Helper()
	u, tokens, err := e.auth.Register(context.Background(), in)
	require.NoError(t, err)
	return u, tokens
}

func (e *memoryEnv) login(t *testing.T, username, password string) *domain.TokenPair {
	t.Helper()
	tokens, err := e.auth.Login(context.Background(), LoginInput{Username: username, Password: password})
	require.NoError(t, err)
	return tokens
}

func bob() RegisterInput {
	return RegisterInput{
		Username:    "bob",
		Password:    "bob-password",
		Email:       "bob@example.com",
		Name:        "Bob",
		Telephone:   "5550000002",
		AccountType: domain.AccountCompany,
	}
}

func TestScenario_RegisterLoginValidate(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.register(t, registerInput())

	tokens := env.login(t, "alice", "correct-horse")

	assert.NoError(t, env.auth.Validate(ctx, tokens.AccessToken, "alice"))
	assert.NoError(t, env.auth.ValidateRefresh(ctx, tokens.RefreshToken, "alice"))
	assert.ErrorIs(t, env.auth.ValidateRefresh(ctx, tokens.AccessToken, "alice"), apperrors.ErrInvalidToken,
		"access tokens are not in the ledger")
}

func TestScenario_SecondLoginRevokesFirst(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.register(t, registerInput())

	t1 := env.login(t, "alice", "correct-horse")
	t2 := env.login(t, "alice", "correct-horse")

	assert.ErrorIs(t, env.auth.ValidateRefresh(ctx, t1.RefreshToken, "alice"), apperrors.ErrInvalidToken)
	assert.NoError(t, env.auth.ValidateRefresh(ctx, t2.RefreshToken, "alice"))

	stale, err := env.auth.Refresh(ctx, "Bearer "+t1.RefreshToken)
	assert.NoError(t, err)
	assert.Nil(t, stale)

	fresh, err := env.auth.Refresh(ctx, "Bearer "+t2.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, t2.RefreshToken, fresh.RefreshToken)
	assert.NoError(t, env.auth.ValidateRefresh(ctx, t2.RefreshToken, "alice"))
}

func TestScenario_RegisterRevokesNothingOfOthers(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	_, aliceTokens := env.register(t, registerInput())
	env.register(t, bob())
	env.login(t, "bob", "bob-password")

	assert.NoError(t, env.auth.ValidateRefresh(ctx, aliceTokens.RefreshToken, "alice"))
}

func TestScenario_DuplicateRegisterLeavesStateUnchanged(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	original, tokens := env.register(t, registerInput())

	dup := bob()
	dup.Email = "alice@example.com"
	_, _, err := env.auth.Register(ctx, dup)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	_, err = env.users.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	stored, err := env.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, original, stored)
	assert.NoError(t, env.auth.ValidateRefresh(ctx, tokens.RefreshToken, "alice"))
}

func TestScenario_WrongSecretKeepsRole(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.register(t, registerInput())
	env.register(t, bob())
	before, err := env.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)

	_, err = env.auth.Authorize(ctx, "bob", AuthorizeInput{Username: "alice", Role: domain.RoleAdmin, Secret: "wrong"})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	tokens := env.login(t, "alice", "correct-horse")
	require.NotNil(t, tokens)

	after, err := env.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, after.Role)
	assert.Equal(t, before.AuditableFields, after.AuditableFields)
}

func TestScenario_AuthorizeElevatesAndRotates(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	_, before := env.register(t, registerInput())

	tokens, err := env.auth.Authorize(ctx, "root", AuthorizeInput{Username: "alice", Role: domain.RoleAdmin, Secret: testAuthorizationKey})
	require.NoError(t, err)

	u, err := env.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.Equal(t, "root", u.UpdatedBy)
	assert.Equal(t, "alice", u.CreatedBy)

	assert.ErrorIs(t, env.auth.ValidateRefresh(ctx, before.RefreshToken, "alice"), apperrors.ErrInvalidToken)
	assert.NoError(t, env.auth.ValidateRefresh(ctx, tokens.RefreshToken, "alice"))
}

func TestScenario_ConcurrentLoginsLeaveOneValidToken(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.register(t, registerInput())

	const n = 20
	results := make([]*domain.TokenPair, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens, err := env.auth.Login(ctx, LoginInput{Username: "alice", Password: "correct-horse"})
			assert.NoError(t, err)
			results[i] = tokens
		}(i)
	}
	wg.Wait()

	valid := 0
	for _, tokens := range results {
		require.NotNil(t, tokens)
		if env.auth.ValidateRefresh(ctx, tokens.RefreshToken, "alice") == nil {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}

func TestScenario_DeleteRemovesLedgerRows(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.register(t, registerInput())
	tokens := env.login(t, "alice", "correct-horse")

	_, err := env.user.DeleteUser(ctx, "root", "alice", "5559999999")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	deleted, err := env.user.DeleteUser(ctx, "root", "alice", "5550000001")
	require.NoError(t, err)
	assert.Equal(t, "alice", deleted.Username)

	_, err = env.tokens.GetByToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	refreshed, err := env.auth.Refresh(ctx, "Bearer "+tokens.RefreshToken)
	assert.Nil(t, refreshed)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestScenario_PasswordChangeRevokesTokens(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.register(t, registerInput())
	tokens := env.login(t, "alice", "correct-horse")

	_, err := env.user.UpdateProfile(ctx, "alice", UpdateProfileInput{
		Password:    "battery-staple",
		Email:       "alice@example.com",
		Name:        "Alice",
		Telephone:   "5550000001",
		AccountType: domain.AccountCustomer,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, env.auth.ValidateRefresh(ctx, tokens.RefreshToken, "alice"), apperrors.ErrInvalidToken)

	_, err = env.auth.Login(ctx, LoginInput{Username: "alice", Password: "correct-horse"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	env.login(t, "alice", "battery-staple")
}

// loginDuringLookup runs a login right after the refresh token's ledger row
// has been read, before the service renews it.
type loginDuringLookup struct {
	*memory.TokenRepository
	once  sync.Once
	login func()
}

func (r *loginDuringLookup) GetByToken(ctx context.Context, token string) (*domain.Token, error) {
	row, err := r.TokenRepository.GetByToken(ctx, token)
	r.once.Do(r.login)
	return row, err
}

func TestScenario_LoginDuringRefreshWins(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.register(t, registerInput())
	first := env.login(t, "alice", "correct-horse")

	var second *domain.TokenPair
	tokens := &loginDuringLookup{TokenRepository: env.tokens}
	svc := NewAuthService(env.users, tokens, newTestTokenManager(), newTestHasher(t),
		auth.NewSecretGate(testAuthorizationKey), newTestLogger())
	tokens.login = func() {
		var err error
		second, err = svc.Login(ctx, LoginInput{Username: "alice", Password: "correct-horse"})
		require.NoError(t, err)
	}

	refreshed, err := svc.Refresh(ctx, "Bearer "+first.RefreshToken)
	require.NoError(t, err)
	assert.Nil(t, refreshed)

	require.NotNil(t, second)
	assert.NoError(t, env.auth.ValidateRefresh(ctx, second.RefreshToken, "alice"))
	assert.ErrorIs(t, env.auth.ValidateRefresh(ctx, first.RefreshToken, "alice"), apperrors.ErrInvalidToken)
}

func TestScenario_RevokedRefreshTokenCannotAuthenticate(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.register(t, registerInput())
	first := env.login(t, "alice", "correct-horse")
	env.login(t, "alice", "correct-horse")

	require.ErrorIs(t, env.auth.ValidateRefresh(ctx, first.RefreshToken, "alice"), apperrors.ErrInvalidToken)

	_, err := env.auth.Authenticate(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	u, err := env.auth.Authenticate(ctx, first.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
}
