package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/internal/repository"
	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
)

// UserRepository implements repository.UserRepository in memory.
type UserRepository struct {
	s *Store
}

// NewUserRepository creates a user repository backed by s.
func NewUserRepository(s *Store) *UserRepository {
	return &UserRepository{s: s}
}

func fieldValue(u *domain.User, field repository.UniqueField) string {
	switch field {
	case repository.FieldUsername:
		return u.Username
	case repository.FieldEmail:
		return u.Email
	case repository.FieldTelephone:
		return u.Telephone
	}
	return ""
}

var uniqueFields = []repository.UniqueField{
	repository.FieldUsername,
	repository.FieldEmail,
	repository.FieldTelephone,
}

// conflict returns an AlreadyExists error if another user holds one of u's
// unique values. Callers hold s.mu.
func (r *UserRepository) conflict(u *domain.User) error {
	for _, other := range r.s.users {
		if other.ID == u.ID {
			continue
		}
		for _, f := range uniqueFields {
			if fieldValue(other, f) == fieldValue(u, f) {
				return apperrors.AlreadyExists("user", string(f), fieldValue(u, f))
			}
		}
	}
	return nil
}

// Create inserts a copy of u.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[u.ID]; ok {
		return apperrors.AlreadyExists("user", "id", u.ID)
	}
	if err := r.conflict(u); err != nil {
		return err
	}
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.find(ctx, func(u *domain.User) bool { return u.ID == id })
}

// GetByUsername retrieves a user by their username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.find(ctx, func(u *domain.User) bool { return u.Username == username })
}

// GetByUsernameAndTelephone retrieves a user matching both values.
func (r *UserRepository) GetByUsernameAndTelephone(ctx context.Context, username, telephone string) (*domain.User, error) {
	return r.find(ctx, func(u *domain.User) bool {
		return u.Username == username && u.Telephone == telephone
	})
}

func (r *UserRepository) find(ctx context.Context, match func(*domain.User) bool) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// OwnerOf returns the id of the user holding value in field, or "".
func (r *UserRepository) OwnerOf(ctx context.Context, field repository.UniqueField, value string) (string, error) {
	switch field {
	case repository.FieldUsername, repository.FieldEmail, repository.FieldTelephone:
	default:
		return "", fmt.Errorf("unknown unique field %q", field)
	}
	u, err := r.find(ctx, func(u *domain.User) bool { return fieldValue(u, field) == value })
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return u.ID, nil
}

// Update replaces the stored user.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.updateLocked(u)
}

// UpdateRevokingTokens replaces the stored user and revokes their valid
// tokens under the user's lock.
func (r *UserRepository) UpdateRevokingTokens(ctx context.Context, u *domain.User) (int64, error) {
	lock := r.s.lockUser(u.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.updateLocked(u); err != nil {
		return 0, err
	}
	return r.s.revokeLocked(u.ID, ""), nil
}

func (r *UserRepository) updateLocked(u *domain.User) error {
	stored, ok := r.s.users[u.ID]
	if !ok {
		return apperrors.NotFound("user", u.ID)
	}
	if err := r.conflict(u); err != nil {
		return err
	}
	cp := *u
	cp.Username = stored.Username
	cp.CreatedBy = stored.CreatedBy
	cp.CreatedAt = stored.CreatedAt
	r.s.users[u.ID] = &cp
	return nil
}

// Delete removes the user and every ledger row they own.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := r.s.lockUser(id)
	lock.Lock()
	defer lock.Unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return apperrors.NotFound("user", id)
	}
	for key, t := range r.s.tokens {
		if t.UserID == id {
			delete(r.s.tokens, key)
		}
	}
	delete(r.s.users, id)
	r.s.forgetUser(id)
	return nil
}
