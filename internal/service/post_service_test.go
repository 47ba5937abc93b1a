package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteline/kiteline-api/internal/models"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
)

type postRepoStub struct {
	posts   map[string]*models.Post
	deleted []string
}

func newPostRepoStub() *postRepoStub {
	return &postRepoStub{posts: make(map[string]*models.Post)}
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = "p1"
	}
	copied := *post
	s.posts[post.ID] = &copied
	return nil
}

func (s *postRepoStub) FindByID(ctx context.Context, id string) (*models.Post, error) {
	if post, ok := s.posts[id]; ok {
		copied := *post
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *postRepoStub) ListByAuthor(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error) {
	var posts []models.Post
	for _, post := range s.posts {
		if post.AuthorID == filter.AuthorID {
			posts = append(posts, *post)
		}
	}
	return posts, len(posts), nil
}

func (s *postRepoStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.posts, id)
	return nil
}

type postAuditStub struct {
	logs []*models.AuditLog
}

func (s *postAuditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func TestPostCreate(t *testing.T) {
	repo := newPostRepoStub()
	audit := &postAuditStub{}
	svc := NewPostService(repo, audit, validator.New(), nil)

	post, err := svc.Create(context.Background(), "u1", CreatePostRequest{Body: "hello kiteline"}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "u1", post.AuthorID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionPostCreate, audit.logs[0].Action)
}

func TestPostCreateBodyTooLong(t *testing.T) {
	svc := NewPostService(newPostRepoStub(), &postAuditStub{}, validator.New(), nil)

	_, err := svc.Create(context.Background(), "u1", CreatePostRequest{Body: strings.Repeat("a", 501)}, models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestPostDeleteByAuthor(t *testing.T) {
	repo := newPostRepoStub()
	repo.posts["p1"] = &models.Post{ID: "p1", AuthorID: "u1"}
	svc := NewPostService(repo, &postAuditStub{}, validator.New(), nil)

	err := svc.Delete(context.Background(), "p1", &models.JWTClaims{UserID: "u1", Role: models.RoleUser}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, repo.deleted)
}

func TestPostDeleteByAdmin(t *testing.T) {
	repo := newPostRepoStub()
	repo.posts["p1"] = &models.Post{ID: "p1", AuthorID: "u1"}
	svc := NewPostService(repo, &postAuditStub{}, validator.New(), nil)

	err := svc.Delete(context.Background(), "p1", &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}, models.LoginRequest{})
	require.NoError(t, err)
}

func TestPostDeleteForbiddenForOtherUser(t *testing.T) {
	repo := newPostRepoStub()
	repo.posts["p1"] = &models.Post{ID: "p1", AuthorID: "u1"}
	svc := NewPostService(repo, &postAuditStub{}, validator.New(), nil)

	err := svc.Delete(context.Background(), "p1", &models.JWTClaims{UserID: "u2", Role: models.RoleUser}, models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, repo.deleted)
}

func TestPostDeleteUnknown(t *testing.T) {
	svc := NewPostService(newPostRepoStub(), &postAuditStub{}, validator.New(), nil)

	err := svc.Delete(context.Background(), "ghost", &models.JWTClaims{UserID: "u1", Role: models.RoleUser}, models.LoginRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
