package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kiteline/kiteline-api/internal/models"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
)

type authRepoStub struct {
	usersByName   map[string]*models.User
	usersByEmail  map[string]*models.User
	usersByID     map[string]*models.User
	tokensByValue map[string]*models.RefreshToken
	created       []*models.User
	logs          []*models.AuditLog
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		usersByName:   make(map[string]*models.User),
		usersByEmail:  make(map[string]*models.User),
		usersByID:     make(map[string]*models.User),
		tokensByValue: make(map[string]*models.RefreshToken),
	}
}

func (s *authRepoStub) addUser(user *models.User) {
	s.usersByName[user.Username] = user
	s.usersByEmail[user.Email] = user
	s.usersByID[user.ID] = user
}

func (s *authRepoStub) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if user, ok := s.usersByName[username]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.usersByEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.usersByID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) Create(ctx context.Context, user *models.User) error {
	s.created = append(s.created, user)
	s.addUser(user)
	return nil
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokensByValue[token.Token] = token
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := s.tokensByValue[token]; ok {
		return rt, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, rt := range s.tokensByValue {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (s *authRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "kiteline-api",
	}
}

func hashPassword(t *testing.T, raw string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestRegisterCreatesUser(t *testing.T) {
	repo := newAuthRepoStub()
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	user, err := svc.Register(context.Background(), RegisterRequest{
		Username:    "Ada123",
		Email:       "Ada@Example.com",
		Password:    "correcthorse",
		DisplayName: "Ada",
	}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ada123", user.Username)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.True(t, user.Active)
	assert.False(t, user.Verified)
	require.Len(t, repo.logs, 1)
	assert.Equal(t, models.AuditActionRegister, repo.logs[0].Action)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newAuthRepoStub()
	repo.addUser(&models.User{ID: "1", Username: "ada", Email: "other@example.com"})
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Username:    "ada",
		Email:       "ada@example.com",
		Password:    "correcthorse",
		DisplayName: "Ada",
	}, models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := NewAuthService(newAuthRepoStub(), validator.New(), nil, testAuthConfig())

	_, err := svc.Register(context.Background(), RegisterRequest{
		Username:    "ada",
		Email:       "ada@example.com",
		Password:    "short",
		DisplayName: "Ada",
	}, models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestLoginSuccessIssuesTokens(t *testing.T) {
	repo := newAuthRepoStub()
	repo.addUser(&models.User{
		ID:           "u1",
		Username:     "ada",
		Email:        "ada@example.com",
		PasswordHash: hashPassword(t, "correcthorse"),
		Role:         models.RoleUser,
		Active:       true,
	})
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Username: "ada", Password: "correcthorse"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "ada", res.User.Username)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newAuthRepoStub()
	repo.addUser(&models.User{
		ID:           "u1",
		Username:     "ada",
		PasswordHash: hashPassword(t, "correcthorse"),
		Active:       true,
	})
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ada", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginUnknownUser(t *testing.T) {
	svc := NewAuthService(newAuthRepoStub(), validator.New(), nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "whatever1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newAuthRepoStub()
	repo.addUser(&models.User{
		ID:           "u1",
		Username:     "ada",
		PasswordHash: hashPassword(t, "correcthorse"),
		Active:       false,
	})
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ada", Password: "correcthorse"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))
}

func TestRefreshTokenRotates(t *testing.T) {
	repo := newAuthRepoStub()
	repo.addUser(&models.User{ID: "u1", Username: "ada", Active: true, Role: models.RoleUser})
	repo.tokensByValue["old-token"] = &models.RefreshToken{
		ID:        "rt1",
		UserID:    "u1",
		Token:     "old-token",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "old-token", res.RefreshToken)
	assert.True(t, repo.tokensByValue["old-token"].Revoked)
}

func TestRefreshTokenExpired(t *testing.T) {
	repo := newAuthRepoStub()
	repo.addUser(&models.User{ID: "u1", Username: "ada", Active: true})
	repo.tokensByValue["stale"] = &models.RefreshToken{
		ID:        "rt1",
		UserID:    "u1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestLogoutRevokesToken(t *testing.T) {
	repo := newAuthRepoStub()
	repo.tokensByValue["tok"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	err := svc.Logout(context.Background(), "tok", "u1", models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, repo.tokensByValue["tok"].Revoked)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	repo := newAuthRepoStub()
	repo.tokensByValue["tok"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	svc := NewAuthService(repo, validator.New(), nil, testAuthConfig())

	err := svc.Logout(context.Background(), "tok", "someone-else", models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewAuthService(newAuthRepoStub(), validator.New(), nil, testAuthConfig())

	_, err := svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
