package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteline/kiteline-api/internal/models"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
)

type userRepoStub struct {
	usersByID   map[string]*models.User
	usersByName map[string]*models.User
	updated     []*models.User
	deleted     []string
	logs        []*models.AuditLog
	listErr     error
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{
		usersByID:   make(map[string]*models.User),
		usersByName: make(map[string]*models.User),
	}
}

func (s *userRepoStub) add(user *models.User) {
	s.usersByID[user.ID] = user
	s.usersByName[user.Username] = user
}

func (s *userRepoStub) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	var users []models.User
	for _, user := range s.usersByID {
		users = append(users, *user)
	}
	return users, len(users), nil
}

func (s *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.usersByID[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if user, ok := s.usersByName[username]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	s.updated = append(s.updated, user)
	s.add(user)
	return nil
}

func (s *userRepoStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *userRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func TestUserGetByUsername(t *testing.T) {
	repo := newUserRepoStub()
	repo.add(&models.User{ID: "u1", Username: "ada", DisplayName: "Ada"})
	svc := NewUserService(repo, validator.New(), nil)

	user, err := svc.GetByUsername(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestUserGetByUsernameNotFound(t *testing.T) {
	svc := NewUserService(newUserRepoStub(), validator.New(), nil)

	_, err := svc.GetByUsername(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestUserUpdateProfile(t *testing.T) {
	repo := newUserRepoStub()
	repo.add(&models.User{ID: "u1", Username: "ada", DisplayName: "Ada"})
	svc := NewUserService(repo, validator.New(), nil)

	user, err := svc.UpdateProfile(context.Background(), "u1", UpdateProfileRequest{DisplayName: "Ada L.", Bio: "mathematician"}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", user.DisplayName)
	assert.Equal(t, "mathematician", user.Bio)
	require.Len(t, repo.logs, 1)
	assert.Equal(t, models.AuditActionUserUpdate, repo.logs[0].Action)
}

func TestUserUpdateProfileInvalid(t *testing.T) {
	repo := newUserRepoStub()
	repo.add(&models.User{ID: "u1", Username: "ada"})
	svc := NewUserService(repo, validator.New(), nil)

	_, err := svc.UpdateProfile(context.Background(), "u1", UpdateProfileRequest{}, models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestUserDeactivate(t *testing.T) {
	repo := newUserRepoStub()
	repo.add(&models.User{ID: "u1", Username: "ada", Active: true})
	svc := NewUserService(repo, validator.New(), nil)

	err := svc.Deactivate(context.Background(), "u1", "admin", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, repo.deleted)
}

func TestUserDeactivateUnknown(t *testing.T) {
	svc := NewUserService(newUserRepoStub(), validator.New(), nil)

	err := svc.Deactivate(context.Background(), "ghost", "admin", models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
