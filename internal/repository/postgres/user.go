package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/internal/repository"
	"github.com/Tzesh/EcommerceAPI/pkg/database"
	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
)

const userColumns = `id, username, email, telephone, name, password_hash, role, account_type,
		created_by, created_at, updated_by, updated_at`

// uniqueColumns maps unique fields to their column and constraint names.
var uniqueColumns = map[repository.UniqueField]struct{ column, constraint string }{
	repository.FieldUsername:  {"username", "users_username_key"},
	repository.FieldEmail:     {"email", "users_email_key"},
	repository.FieldTelephone: {"telephone", "users_telephone_key"},
}

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	pool database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(pool database.DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(database.WithOperation(ctx, "users.create"), query,
		u.ID,
		u.Username,
		u.Email,
		u.Telephone,
		u.Name,
		u.PasswordHash,
		u.Role,
		u.AccountType,
		u.CreatedBy,
		u.CreatedAt,
		u.UpdatedBy,
		u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return conflictFor(err, u)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// conflictFor maps a unique violation on users to the field that caused it.
func conflictFor(err error, u *domain.User) error {
	values := map[repository.UniqueField]string{
		repository.FieldUsername:  u.Username,
		repository.FieldEmail:     u.Email,
		repository.FieldTelephone: u.Telephone,
	}
	name := database.ConstraintName(err)
	for field, c := range uniqueColumns {
		if c.constraint == name {
			return apperrors.AlreadyExists("user", string(field), values[field])
		}
	}
	return apperrors.AlreadyExists("user", "username", u.Username)
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return r.scanUser(database.WithOperation(ctx, "users.get_by_id"), query, id)
}

// GetByUsername retrieves a user by their username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	return r.scanUser(database.WithOperation(ctx, "users.get_by_username"), query, username)
}

// GetByUsernameAndTelephone retrieves a user matching both values.
func (r *UserRepository) GetByUsernameAndTelephone(ctx context.Context, username, telephone string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND telephone = $2`

	return r.scanUser(database.WithOperation(ctx, "users.get_by_username_telephone"), query, username, telephone)
}

// OwnerOf returns the id of the user holding value in field, or "".
func (r *UserRepository) OwnerOf(ctx context.Context, field repository.UniqueField, value string) (string, error) {
	c, ok := uniqueColumns[field]
	if !ok {
		return "", fmt.Errorf("unknown unique field %q", field)
	}
	query := `SELECT id FROM users WHERE ` + c.column + ` = $1`

	var id string
	err := r.pool.QueryRow(database.WithOperation(ctx, "users.owner_of"), query, value).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup user by %s: %w", field, err)
	}
	return id, nil
}

// Update modifies an existing user in the database. Username and creation
// audit fields are immutable.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	ct, err := r.pool.Exec(database.WithOperation(ctx, "users.update"), updateUserQuery, updateArgs(u)...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return conflictFor(err, u)
		}
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}

	return nil
}

// UpdateRevokingTokens updates u and invalidates all of its valid tokens in
// one transaction. It returns the number of revoked tokens.
func (r *UserRepository) UpdateRevokingTokens(ctx context.Context, u *domain.User) (int64, error) {
	ctx = database.WithOperation(ctx, "users.update_revoking_tokens")

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, updateUserQuery, updateArgs(u)...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, conflictFor(err, u)
		}
		return 0, fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return 0, apperrors.NotFound("user", u.ID)
	}

	ct, err = tx.Exec(ctx, revokeValidQuery, u.ID)
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return ct.RowsAffected(), nil
}

const updateUserQuery = `
	UPDATE users
	SET email = $1, telephone = $2, name = $3, password_hash = $4, role = $5, account_type = $6,
	    updated_by = $7, updated_at = $8
	WHERE id = $9`

func updateArgs(u *domain.User) []any {
	return []any{
		u.Email,
		u.Telephone,
		u.Name,
		u.PasswordHash,
		u.Role,
		u.AccountType,
		u.UpdatedBy,
		u.UpdatedAt,
		u.ID,
	}
}

// Delete removes a user and their ledger rows in one transaction.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	ctx = database.WithOperation(ctx, "users.delete")

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("delete user tokens: %w", err)
	}

	ct, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// scanUser is a helper that executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Telephone,
		&u.Name,
		&u.PasswordHash,
		&u.Role,
		&u.AccountType,
		&u.CreatedBy,
		&u.CreatedAt,
		&u.UpdatedBy,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
