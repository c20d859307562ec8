package memory

import (
	"context"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
)

// TokenRepository implements repository.TokenRepository in memory.
type TokenRepository struct {
	s *Store
}

// NewTokenRepository creates a token ledger backed by s.
func NewTokenRepository(s *Store) *TokenRepository {
	return &TokenRepository{s: s}
}

// GetByToken retrieves a copy of the ledger row for token.
func (r *TokenRepository) GetByToken(ctx context.Context, token string) (*domain.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tokens[token]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// RevokeAllValid invalidates every valid token of the user.
func (r *TokenRepository) RevokeAllValid(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.revokeLocked(userID, ""), nil
}

// Save inserts a new valid token row.
func (r *TokenRepository) Save(ctx context.Context, t *domain.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tokens[t.Token]; ok {
		return apperrors.RetryableConflict("token already recorded", nil)
	}
	cp := *t
	cp.Revoked, cp.Expired = false, false
	r.s.tokens[t.Token] = &cp
	return nil
}

// Rotate revokes the user's valid tokens and records t under the user's
// lock. The sweep and the insert are applied together or not at all.
func (r *TokenRepository) Rotate(ctx context.Context, userID string, t *domain.Token) error {
	lock := r.s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[userID]; !ok {
		return apperrors.NotFound("user", userID)
	}
	if _, ok := r.s.tokens[t.Token]; ok {
		return apperrors.RetryableConflict("token already recorded", nil)
	}

	r.s.revokeLocked(userID, "")

	cp := *t
	cp.UserID = userID
	cp.Revoked, cp.Expired = false, false
	r.s.tokens[t.Token] = &cp
	return nil
}

// Renew revokes every valid token of the user except token, after checking
// under the user's lock that token is still valid and owned by the user.
func (r *TokenRepository) Renew(ctx context.Context, userID, token string) error {
	lock := r.s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[userID]; !ok {
		return apperrors.NotFound("user", userID)
	}
	row, ok := r.s.tokens[token]
	if !ok || row.UserID != userID {
		return apperrors.InvalidToken("token is not registered")
	}
	if !row.Valid() {
		return apperrors.InvalidToken("token has been revoked")
	}

	r.s.revokeLocked(userID, token)
	return nil
}
