package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Tzesh/EcommerceAPI/internal/auth"
	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/internal/repository"
	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
)

// UserService implements profile operations on existing users.
type UserService struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	logger *slog.Logger
	options
}

// NewUserService creates a new user service.
func NewUserService(
	users repository.UserRepository,
	hasher *auth.PasswordHasher,
	logger *slog.Logger,
	opts ...Option,
) *UserService {
	return &UserService{
		users:   users,
		hasher:  hasher,
		logger:  logger,
		options: buildOptions(opts),
	}
}

// UpdateProfileInput holds the parameters for updating a user's profile.
type UpdateProfileInput struct {
	Password    string
	Email       string
	Name        string
	Telephone   string
	AccountType domain.AccountType
}

// GetProfile returns the user with the given username.
func (s *UserService) GetProfile(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", username)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateProfile replaces the mutable fields of actor's own profile. A
// password change revokes all of the user's refresh tokens.
func (s *UserService) UpdateProfile(ctx context.Context, actor string, in UpdateProfileInput) (_ *domain.User, err error) {
	defer func() { s.metrics.record("update_profile", err) }()

	if !domain.IsValidAccountType(string(in.AccountType)) {
		return nil, apperrors.InvalidInput("account type must be CUSTOMER or COMPANY")
	}

	user, err := s.GetProfile(ctx, actor)
	if err != nil {
		return nil, err
	}

	if err := checkAvailable(ctx, s.users, user.ID, map[repository.UniqueField]string{
		repository.FieldEmail:     in.Email,
		repository.FieldTelephone: in.Telephone,
	}); err != nil {
		return nil, err
	}

	passwordChanged := false
	switch err := s.hasher.Compare(user.PasswordHash, in.Password); {
	case errors.Is(err, auth.ErrPasswordMismatch):
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, hashError(err)
		}
		user.PasswordHash = hash
		passwordChanged = true
	case err != nil:
		return nil, err
	}

	user.Email = in.Email
	user.Name = in.Name
	user.Telephone = in.Telephone
	user.AccountType = in.AccountType
	user.Stamp(actor, s.now().UTC())

	if !passwordChanged {
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	} else {
		n, err := s.users.UpdateRevokingTokens(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		s.logger.InfoContext(ctx, "password changed, tokens revoked",
			slog.String("user_id", user.ID),
			slog.Int64("revoked", n),
		)
	}

	publish(ctx, s.logger, s.events, user.ID, func(p EventPublisher) error {
		return p.PublishUserUpdated(ctx, user, actor)
	})

	s.logger.InfoContext(ctx, "user profile updated", slog.String("user_id", user.ID))

	return user, nil
}

// DeleteUser removes the user matching both username and telephone together
// with all of their tokens.
func (s *UserService) DeleteUser(ctx context.Context, actor, username, telephone string) (_ *domain.User, err error) {
	defer func() { s.metrics.record("delete_user", err) }()

	user, err := s.users.GetByUsernameAndTelephone(ctx, username, telephone)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", username)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}

	publish(ctx, s.logger, s.events, user.ID, func(p EventPublisher) error {
		return p.PublishUserDeleted(ctx, user, actor)
	})

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", user.ID),
		slog.String("actor", actor),
	)

	return user, nil
}
