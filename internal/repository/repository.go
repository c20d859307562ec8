package repository

import (
	"context"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
)

// UniqueField names a user attribute that must be unique across users.
type UniqueField string

const (
	FieldUsername  UniqueField = "username"
	FieldEmail     UniqueField = "email"
	FieldTelephone UniqueField = "telephone"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByUsername retrieves a user by their username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetByUsernameAndTelephone retrieves a user matching both values.
	GetByUsernameAndTelephone(ctx context.Context, username, telephone string) (*domain.User, error)

	// OwnerOf returns the id of the user holding value in field, or "" if
	// no user does.
	OwnerOf(ctx context.Context, field UniqueField, value string) (string, error)

	// Update modifies an existing user in the store.
	Update(ctx context.Context, user *domain.User) error

	// UpdateRevokingTokens updates the user and revokes all of their valid
	// tokens in one atomic step. It returns how many tokens were revoked.
	UpdateRevokingTokens(ctx context.Context, user *domain.User) (int64, error)

	// Delete removes a user and all of their tokens atomically.
	Delete(ctx context.Context, id string) error
}

// TokenRepository is the ledger of issued refresh tokens.
type TokenRepository interface {
	// GetByToken retrieves a ledger row by its token string.
	GetByToken(ctx context.Context, token string) (*domain.Token, error)

	// RevokeAllValid marks every valid token of the user revoked and expired
	// and returns how many rows changed.
	RevokeAllValid(ctx context.Context, userID string) (int64, error)

	// Save inserts a new valid token row.
	Save(ctx context.Context, token *domain.Token) error

	// Rotate revokes every valid token of the user and stores the new token
	// as the only valid one, as a single atomic step. A token string that is
	// already in the ledger is a retryable conflict.
	Rotate(ctx context.Context, userID string, token *domain.Token) error

	// Renew keeps an existing token as the user's only valid one. The token
	// must still be a valid row of the user when the user's lock is held,
	// otherwise apperrors.ErrInvalidToken is returned and nothing changes.
	Renew(ctx context.Context, userID, token string) error
}
