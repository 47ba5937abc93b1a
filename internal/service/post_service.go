package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kiteline/kiteline-api/internal/models"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
)

type postRepository interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id string) (*models.Post, error)
	ListByAuthor(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error)
	Delete(ctx context.Context, id string) error
}

type postAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreatePostRequest is the payload for authoring a post.
type CreatePostRequest struct {
	Body string `json:"body" validate:"required,max=500"`
}

// PostService handles post workflows.
type PostService struct {
	repo      postRepository
	audit     postAuditRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPostService creates an instance of PostService.
func NewPostService(repo postRepository, audit postAuditRepository, validate *validator.Validate, logger *zap.Logger) *PostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PostService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Create authors a new post for the caller.
func (s *PostService) Create(ctx context.Context, authorID string, req CreatePostRequest, meta models.LoginRequest) (*models.Post, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid post payload")
	}

	post := &models.Post{AuthorID: authorID, Body: req.Body}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create post")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &authorID,
		Action:     models.AuditActionPostCreate,
		Resource:   "posts",
		ResourceID: &post.ID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record post create audit log", zap.Error(err))
	}

	return post, nil
}

// Get returns a post by ID.
func (s *PostService) Get(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	return post, nil
}

// ListByAuthor returns an author's posts with pagination metadata.
func (s *PostService) ListByAuthor(ctx context.Context, filter models.PostFilter) ([]models.Post, *models.Pagination, error) {
	posts, total, err := s.repo.ListByAuthor(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list posts")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return posts, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Delete removes the caller's own post. Admins may remove any post.
func (s *PostService) Delete(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) error {
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}

	if post.AuthorID != actor.UserID && actor.Role != models.RoleAdmin && actor.Role != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete another user's post")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete post")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionPostDelete,
		Resource:   "posts",
		ResourceID: &id,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record post delete audit log", zap.Error(err))
	}

	return nil
}
