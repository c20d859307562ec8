package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/pkg/database"
	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
)

// TokenRepository implements repository.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool database.DBTX
}

// NewTokenRepository creates a new PostgreSQL-backed token ledger.
func NewTokenRepository(pool database.DBTX) *TokenRepository {
	return &TokenRepository{pool: pool}
}

const (
	revokeValidQuery = `
		UPDATE tokens SET revoked = true, expired = true
		WHERE user_id = $1 AND NOT revoked AND NOT expired`

	insertTokenQuery = `
		INSERT INTO tokens (id, token, kind, revoked, expired, user_id, created_at)
		VALUES ($1, $2, $3, false, false, $4, $5)`
)

// GetByToken retrieves a ledger row by its token string.
func (r *TokenRepository) GetByToken(ctx context.Context, token string) (*domain.Token, error) {
	query := `
		SELECT id, token, kind, revoked, expired, user_id, created_at
		FROM tokens
		WHERE token = $1`

	var t domain.Token
	err := r.pool.QueryRow(database.WithOperation(ctx, "tokens.get_by_token"), query, token).Scan(
		&t.ID,
		&t.Token,
		&t.Kind,
		&t.Revoked,
		&t.Expired,
		&t.UserID,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}

	return &t, nil
}

// RevokeAllValid invalidates every valid token of the user.
func (r *TokenRepository) RevokeAllValid(ctx context.Context, userID string) (int64, error) {
	ct, err := r.pool.Exec(database.WithOperation(ctx, "tokens.revoke_all_valid"), revokeValidQuery, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Save inserts a new valid token row.
func (r *TokenRepository) Save(ctx context.Context, t *domain.Token) error {
	_, err := r.pool.Exec(database.WithOperation(ctx, "tokens.save"), insertTokenQuery,
		t.ID,
		t.Token,
		t.Kind,
		t.UserID,
		t.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.RetryableConflict("token already recorded", err)
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// Rotate locks the user row, revokes the user's valid tokens and inserts t,
// all in one transaction. Concurrent rotations for the same user queue on
// the row lock.
func (r *TokenRepository) Rotate(ctx context.Context, userID string, t *domain.Token) error {
	ctx = database.WithOperation(ctx, "tokens.rotate")

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUser(ctx, tx, userID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, revokeValidQuery, userID); err != nil {
		return rotateErr("revoke tokens", err)
	}

	if _, err := tx.Exec(ctx, insertTokenQuery,
		t.ID,
		t.Token,
		t.Kind,
		userID,
		t.CreatedAt,
	); err != nil {
		return rotateErr("insert token", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return rotateErr("commit transaction", err)
	}

	return nil
}

// Renew keeps token as the user's only valid row. The row is re-checked
// under the user lock, so a login that committed after the caller's own
// check wins and Renew returns ErrInvalidToken without touching the ledger.
func (r *TokenRepository) Renew(ctx context.Context, userID, token string) error {
	ctx = database.WithOperation(ctx, "tokens.renew")

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUser(ctx, tx, userID); err != nil {
		return err
	}

	var revoked, expired bool
	err = tx.QueryRow(ctx, `
		SELECT revoked, expired FROM tokens
		WHERE token = $1 AND user_id = $2
		FOR UPDATE`, token, userID).Scan(&revoked, &expired)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.InvalidToken("token is not registered")
		}
		return rotateErr("lock token", err)
	}
	if revoked || expired {
		return apperrors.InvalidToken("token has been revoked")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tokens SET revoked = true, expired = true
		WHERE user_id = $1 AND token <> $2 AND NOT revoked AND NOT expired`,
		userID, token); err != nil {
		return rotateErr("revoke tokens", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return rotateErr("commit transaction", err)
	}

	return nil
}

func lockUser(ctx context.Context, tx pgx.Tx, userID string) error {
	ct, err := tx.Exec(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err != nil {
		return rotateErr("lock user", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", userID)
	}
	return nil
}

func rotateErr(step string, err error) error {
	if database.IsTransientTxError(err) || database.IsUniqueViolation(err) {
		return apperrors.RetryableConflict("token rotation lost a concurrent update", err)
	}
	return fmt.Errorf("%s: %w", step, err)
}
