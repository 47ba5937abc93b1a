package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/kiteline/kiteline-api/internal/models"
	appErrors "github.com/kiteline/kiteline-api/pkg/errors"
)

type followRepository interface {
	Create(ctx context.Context, follow *models.Follow) error
	Find(ctx context.Context, followerID, followeeID string) (*models.Follow, error)
	Delete(ctx context.Context, followerID, followeeID string) error
	ListFollowers(ctx context.Context, userID string) ([]models.UserSummary, error)
	ListFollowing(ctx context.Context, userID string) ([]models.UserSummary, error)
}

type followAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// FollowService handles social graph workflows. Edges are keyed by immutable
// user ids; username translation happens at the handler boundary.
type FollowService struct {
	repo   followRepository
	audit  followAuditRepository
	logger *zap.Logger
}

// NewFollowService creates an instance of FollowService.
func NewFollowService(repo followRepository, audit followAuditRepository, logger *zap.Logger) *FollowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FollowService{repo: repo, audit: audit, logger: logger}
}

// Follow creates an edge from follower to followee.
func (s *FollowService) Follow(ctx context.Context, followerID, followeeID string, meta models.LoginRequest) error {
	if followerID == followeeID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot follow yourself")
	}

	if _, err := s.repo.Find(ctx, followerID, followeeID); err == nil {
		return appErrors.Clone(appErrors.ErrConflict, "already following this user")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check follow")
	}

	if err := s.repo.Create(ctx, &models.Follow{FollowerID: followerID, FolloweeID: followeeID}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create follow")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &followerID,
		Action:     models.AuditActionFollow,
		Resource:   "follows",
		ResourceID: &followeeID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record follow audit log", zap.Error(err))
	}

	return nil
}

// Unfollow removes the edge from follower to followee.
func (s *FollowService) Unfollow(ctx context.Context, followerID, followeeID string, meta models.LoginRequest) error {
	if _, err := s.repo.Find(ctx, followerID, followeeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "not following this user")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check follow")
	}

	if err := s.repo.Delete(ctx, followerID, followeeID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete follow")
	}

	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &followerID,
		Action:     models.AuditActionUnfollow,
		Resource:   "follows",
		ResourceID: &followeeID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record unfollow audit log", zap.Error(err))
	}

	return nil
}

// Followers returns users following the given user.
func (s *FollowService) Followers(ctx context.Context, userID string) ([]models.UserSummary, error) {
	users, err := s.repo.ListFollowers(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list followers")
	}
	return users, nil
}

// Following returns users the given user follows.
func (s *FollowService) Following(ctx context.Context, userID string) ([]models.UserSummary, error) {
	users, err := s.repo.ListFollowing(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list following")
	}
	return users, nil
}
