package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Tzesh/EcommerceAPI/internal/auth"
	"github.com/Tzesh/EcommerceAPI/internal/domain"
	"github.com/Tzesh/EcommerceAPI/internal/repository"
	apperrors "github.com/Tzesh/EcommerceAPI/pkg/errors"
)

func newUserFixture(t *testing.T) (*UserService, *mockUserRepository, *auth.PasswordHasher, *recordingEvents) {
	t.Helper()
	users := &mockUserRepository{}
	hasher := newTestHasher(t)
	events := &recordingEvents{}
	svc := NewUserService(users, hasher, newTestLogger(), WithEvents(events))
	return svc, users, hasher, events
}

func profileInput() UpdateProfileInput {
	return UpdateProfileInput{
		Password:    "correct-horse",
		Email:       "alice@new.example.com",
		Name:        "Alice Cooper",
		Telephone:   "5550000011",
		AccountType: domain.AccountCompany,
	}
}

func TestGetProfile(t *testing.T) {
	svc, users, hasher, _ := newUserFixture(t)
	ctx := context.Background()
	users.On("GetByUsername", ctx, "alice").Return(sampleUser(t, hasher), nil)
	users.On("GetByUsername", ctx, "ghost").Return(nil, apperrors.ErrNotFound)

	u, err := svc.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)

	_, err = svc.GetProfile(ctx, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestUpdateProfile_SamePasswordKeepsTokens(t *testing.T) {
	svc, users, hasher, events := newUserFixture(t)
	ctx := context.Background()
	user := sampleUser(t, hasher)
	originalHash := user.PasswordHash

	users.On("GetByUsername", ctx, "alice").Return(user, nil)
	users.On("OwnerOf", ctx, repository.FieldEmail, "alice@new.example.com").Return("", nil)
	users.On("OwnerOf", ctx, repository.FieldTelephone, "5550000011").Return("u-1", nil)
	users.On("Update", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "alice@new.example.com" && u.PasswordHash == originalHash &&
			u.AccountType == domain.AccountCompany && u.UpdatedBy == "alice"
	})).Return(nil)

	got, err := svc.UpdateProfile(ctx, "alice", profileInput())
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", got.Name)
	users.AssertNotCalled(t, "UpdateRevokingTokens", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"updated"}, events.kinds())
	users.AssertExpectations(t)
}

func TestUpdateProfile_NewPasswordRevokesTokens(t *testing.T) {
	svc, users, hasher, events := newUserFixture(t)
	ctx := context.Background()
	user := sampleUser(t, hasher)
	in := profileInput()
	in.Password = "battery-staple"

	users.On("GetByUsername", ctx, "alice").Return(user, nil)
	users.On("OwnerOf", ctx, mock.Anything, mock.Anything).Return("", nil)
	users.On("UpdateRevokingTokens", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "alice@new.example.com" && hasher.Compare(u.PasswordHash, "battery-staple") == nil
	})).Return(int64(1), nil)

	got, err := svc.UpdateProfile(ctx, "alice", in)
	require.NoError(t, err)
	assert.NoError(t, hasher.Compare(got.PasswordHash, "battery-staple"))
	users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"updated"}, events.kinds())
	users.AssertExpectations(t)
}

func TestUpdateProfile_NewPasswordUpdateFails(t *testing.T) {
	svc, users, hasher, events := newUserFixture(t)
	ctx := context.Background()
	in := profileInput()
	in.Password = "battery-staple"

	users.On("GetByUsername", ctx, "alice").Return(sampleUser(t, hasher), nil)
	users.On("OwnerOf", ctx, mock.Anything, mock.Anything).Return("", nil)
	users.On("UpdateRevokingTokens", ctx, mock.Anything).
		Return(int64(0), apperrors.AlreadyExists("user", "email", in.Email))

	_, err := svc.UpdateProfile(ctx, "alice", in)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	assert.Empty(t, events.kinds())
}

func TestUpdateProfile_EmailTakenByAnotherUser(t *testing.T) {
	svc, users, hasher, events := newUserFixture(t)
	ctx := context.Background()

	users.On("GetByUsername", ctx, "alice").Return(sampleUser(t, hasher), nil)
	users.On("OwnerOf", ctx, repository.FieldEmail, "alice@new.example.com").Return("u-2", nil)

	_, err := svc.UpdateProfile(ctx, "alice", profileInput())
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	assert.Empty(t, events.kinds())
}

func TestUpdateProfile_InvalidAccountType(t *testing.T) {
	svc, users, _, _ := newUserFixture(t)
	in := profileInput()
	in.AccountType = ""

	_, err := svc.UpdateProfile(context.Background(), "alice", in)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, users.Calls)
}

func TestDeleteUser(t *testing.T) {
	svc, users, hasher, events := newUserFixture(t)
	ctx := context.Background()

	users.On("GetByUsernameAndTelephone", ctx, "alice", "5550000001").Return(sampleUser(t, hasher), nil)
	users.On("Delete", ctx, "u-1").Return(nil)

	u, err := svc.DeleteUser(ctx, "root", "alice", "5550000001")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	require.Len(t, events.events, 1)
	assert.Equal(t, recordedEvent{kind: "deleted", userID: "u-1", actor: "root"}, events.events[0])
}

func TestDeleteUser_Errors(t *testing.T) {
	svc, users, hasher, _ := newUserFixture(t)
	ctx := context.Background()

	users.On("GetByUsernameAndTelephone", ctx, "ghost", "5550000001").Return(nil, apperrors.ErrNotFound)
	users.On("GetByUsernameAndTelephone", ctx, "alice", "5550000001").Return(sampleUser(t, hasher), nil)
	users.On("Delete", ctx, "u-1").Return(errors.New("connection reset"))

	_, err := svc.DeleteUser(ctx, "root", "ghost", "5550000001")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.DeleteUser(ctx, "root", "alice", "5550000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete user")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", outcome(nil))
	assert.Equal(t, "forbidden", outcome(apperrors.Forbidden("no")))
	assert.Equal(t, "retryable_conflict", outcome(apperrors.RetryableConflict("x", nil)))
	assert.Equal(t, "error", outcome(errors.New("boom")))
	assert.Equal(t, "unauthorized", outcome(wrap(apperrors.Unauthorized("bad"))))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.record("login", nil) })
}

func wrap(err error) error {
	return errors.Join(errors.New("context"), err)
}
