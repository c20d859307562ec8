package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tzesh/EcommerceAPI/internal/auth"
	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/internal/limiter"
	"github.com/Tzesh/EcommerceAPI/internal/repository"
	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
	"github.com/Tzesh/EcommerceAPI/pkg/middleware"
)

const msgBadCredentials = "invalid username or password"

// AuthService registers users, issues and rotates tokens, and gates role
// changes behind the authorization secret.
type AuthService struct {
	users  repository.UserRepository
	tokens repository.TokenRepository
	issuer *auth.TokenManager
	hasher *auth.PasswordHasher
	gate   *auth.SecretGate
	logger *slog.Logger
	options
}

// NewAuthService creates a new auth service.
func NewAuthService(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	issuer *auth.TokenManager,
	hasher *auth.PasswordHasher,
	gate *auth.SecretGate,
	logger *slog.Logger,
	opts ...Option,
) *AuthService {
	return &AuthService{
		users:   users,
		tokens:  tokens,
		issuer:  issuer,
		hasher:  hasher,
		gate:    gate,
		logger:  logger,
		options: buildOptions(opts),
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Username    string
	Password    string
	Email       string
	Name        string
	Telephone   string
	AccountType domain.AccountType
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Username string
	Password string
}

// AuthorizeInput holds the parameters for a role change.
type AuthorizeInput struct {
	Username string
	Role     domain.Role
	Secret   string
}

// Register creates a user with the USER role and logs them in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (_ *domain.User, _ *domain.TokenPair, err error) {
	defer func() { s.metrics.record("register", err) }()

	if !domain.IsValidAccountType(string(in.AccountType)) {
		return nil, nil, apperrors.InvalidInput("account type must be CUSTOMER or COMPANY")
	}

	if err := checkAvailable(ctx, s.users, "", map[repository.UniqueField]string{
		repository.FieldUsername:  in.Username,
		repository.FieldEmail:     in.Email,
		repository.FieldTelephone: in.Telephone,
	}); err != nil {
		return nil, nil, err
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &domain.User{
		ID:              uuid.NewString(),
		Username:        in.Username,
		Email:           in.Email,
		Telephone:       in.Telephone,
		Name:            in.Name,
		PasswordHash:    hash,
		Role:            domain.RoleUser,
		AccountType:     in.AccountType,
		AuditableFields: domain.NewAuditableFields(in.Username, s.now().UTC()),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.issueAndRotate(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	publish(ctx, s.logger, s.events, user.ID, func(p EventPublisher) error {
		return p.PublishUserRegistered(ctx, user)
	})

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, tokens, nil
}

// Login checks the credentials and returns a fresh token pair. Every
// previously valid refresh token of the user is revoked.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (_ *domain.TokenPair, err error) {
	defer func() { s.metrics.record("login", err) }()

	if err := s.checkLimiter(ctx, in.Username); err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, in.Username)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		_ = s.hasher.CompareDummy(in.Password)
		s.loginFailed(ctx, in.Username)
		return nil, apperrors.Unauthorized(msgBadCredentials)
	case err != nil:
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, err
		}
		s.loginFailed(ctx, in.Username)
		return nil, apperrors.Unauthorized(msgBadCredentials)
	}

	tokens, err := s.issueAndRotate(ctx, user)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, user.Username); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login attempts", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return tokens, nil
}

func (s *AuthService) checkLimiter(ctx context.Context, username string) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.Check(ctx, username)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiter.ErrLimited):
		retry := s.limiter.RetryAfter(ctx, username)
		s.logger.WarnContext(ctx, "login throttled", slog.String("username", username))
		return apperrors.TooManyRequests(fmt.Sprintf("too many failed login attempts, retry in %s", retry.Round(time.Second)))
	default:
		// The limiter is best effort. Logins proceed when Redis is down.
		s.logger.WarnContext(ctx, "login limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
}

func (s *AuthService) loginFailed(ctx context.Context, username string) {
	s.logger.InfoContext(ctx, "login failed", slog.String("username", username))
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordFailure(ctx, username); err != nil {
		s.logger.WarnContext(ctx, "failed to record login attempt", slog.String("error", err.Error()))
	}
}

// Refresh exchanges the refresh token in an Authorization header for a new
// access token. The refresh token itself is kept and becomes the user's only
// valid one. A nil pair with a nil error means the header does not carry a
// currently refreshable token.
func (s *AuthService) Refresh(ctx context.Context, authorization string) (_ *domain.TokenPair, err error) {
	defer func() { s.metrics.record("refresh", err) }()

	token, ok := middleware.BearerToken(authorization)
	if !ok {
		return nil, nil
	}

	username, err := s.issuer.ExtractUsername(token)
	if err != nil {
		return nil, nil
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", username)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := s.validateRefresh(ctx, token, user); err != nil {
		if errors.Is(err, apperrors.ErrInvalidToken) {
			s.logger.DebugContext(ctx, "refresh token not refreshable", slog.String("user_id", user.ID))
			return nil, nil
		}
		return nil, err
	}

	access, err := s.issuer.IssueAccess(user.Username)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Renew(ctx, user.ID, token); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidToken):
			s.logger.DebugContext(ctx, "refresh token revoked before renewal", slog.String("user_id", user.ID))
			return nil, nil
		case errors.Is(err, apperrors.ErrNotFound):
			return nil, apperrors.NotFound("user", username)
		}
		return nil, fmt.Errorf("renew token: %w", err)
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))

	return &domain.TokenPair{AccessToken: access, RefreshToken: token}, nil
}

// Authorize sets the role of a user if secret matches the authorization key,
// and returns a fresh token pair for that user. actor is recorded as the
// last modifier.
func (s *AuthService) Authorize(ctx context.Context, actor string, in AuthorizeInput) (_ *domain.TokenPair, err error) {
	defer func() { s.metrics.record("authorize", err) }()

	if !s.gate.Allow(in.Secret) {
		s.logger.WarnContext(ctx, "role change rejected",
			slog.String("actor", actor),
			slog.String("username", in.Username),
		)
		return nil, apperrors.Forbidden("invalid authorization secret")
	}

	if !domain.IsValidRole(string(in.Role)) {
		return nil, apperrors.InvalidInput("role must be USER or ADMIN")
	}

	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", in.Username)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	previous := user.Role
	user.Role = in.Role
	user.Stamp(actor, s.now().UTC())
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user role: %w", err)
	}

	tokens, err := s.issueAndRotate(ctx, user)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.logger, s.events, user.ID, func(p EventPublisher) error {
		return p.PublishRoleChanged(ctx, user, previous, actor)
	})

	s.logger.InfoContext(ctx, "user role changed",
		slog.String("user_id", user.ID),
		slog.String("actor", actor),
		slog.String("previous_role", string(previous)),
		slog.String("role", string(user.Role)),
	)

	return tokens, nil
}

// Validate checks the signature, expiry and subject of token.
func (s *AuthService) Validate(_ context.Context, token, username string) error {
	if _, err := s.issuer.Verify(token, username); err != nil {
		return apperrors.InvalidToken("invalid or expired token")
	}
	return nil
}

// ValidateRefresh checks token like Validate and additionally requires a
// valid ledger row owned by username.
func (s *AuthService) ValidateRefresh(ctx context.Context, token, username string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidToken("invalid or expired token")
		}
		return fmt.Errorf("get user: %w", err)
	}
	return s.validateRefresh(ctx, token, user)
}

func (s *AuthService) validateRefresh(ctx context.Context, token string, user *domain.User) error {
	if _, err := s.issuer.Verify(token, user.Username); err != nil {
		return apperrors.InvalidToken("invalid or expired token")
	}

	row, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidToken("token is not registered")
		}
		return fmt.Errorf("get token: %w", err)
	}
	if row.UserID != user.ID || !row.Valid() {
		return apperrors.InvalidToken("token has been revoked")
	}
	return nil
}

// Authenticate resolves the user an access token was issued to.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return nil, apperrors.InvalidToken("invalid or expired token")
	}

	// Refresh tokens are the ledger's rows; access tokens are never recorded.
	switch _, err := s.tokens.GetByToken(ctx, token); {
	case err == nil:
		return nil, apperrors.InvalidToken("refresh tokens cannot authenticate requests")
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("get token: %w", err)
	}

	user, err := s.users.GetByUsername(ctx, claims.Username())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidToken("token subject no longer exists")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *AuthService) issueAndRotate(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	tokens, err := s.issuer.IssuePair(user.Username)
	if err != nil {
		return nil, err
	}
	if err := s.rotate(ctx, user, tokens.RefreshToken); err != nil {
		return nil, err
	}
	return tokens, nil
}

// rotate makes refresh the only valid ledger row of user.
func (s *AuthService) rotate(ctx context.Context, user *domain.User, refresh string) error {
	row := &domain.Token{
		ID:        ulid.Make().String(),
		Token:     refresh,
		Kind:      domain.TokenBearer,
		UserID:    user.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.tokens.Rotate(ctx, user.ID, row); err != nil {
		return fmt.Errorf("rotate tokens: %w", err)
	}
	return nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", hashError(err)
	}
	return hash, nil
}

func hashError(err error) error {
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return apperrors.InvalidInput("password must be at most 72 bytes")
	}
	return err
}

// checkAvailable returns AlreadyExists for the first value held by a user
// other than selfID.
func checkAvailable(ctx context.Context, users repository.UserRepository, selfID string, values map[repository.UniqueField]string) error {
	for _, field := range []repository.UniqueField{
		repository.FieldUsername,
		repository.FieldEmail,
		repository.FieldTelephone,
	} {
		value, ok := values[field]
		if !ok {
			continue
		}
		owner, err := users.OwnerOf(ctx, field, value)
		if err != nil {
			return fmt.Errorf("check %s: %w", field, err)
		}
		if owner != "" && owner != selfID {
			return apperrors.AlreadyExists("user", string(field), value)
		}
	}
	return nil
}
