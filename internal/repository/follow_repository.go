package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kiteline/kiteline-api/internal/models"
)

// FollowRepository provides database access for the social graph.
type FollowRepository struct {
	db *sqlx.DB
}

// NewFollowRepository creates a new instance of FollowRepository.
func NewFollowRepository(db *sqlx.DB) *FollowRepository {
	return &FollowRepository{db: db}
}

// Create inserts a follow edge.
func (r *FollowRepository) Create(ctx context.Context, follow *models.Follow) error {
	if follow.ID == "" {
		follow.ID = uuid.NewString()
	}
	if follow.CreatedAt.IsZero() {
		follow.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO follows (id, follower_id, followee_id, created_at) VALUES (:id, :follower_id, :followee_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, follow); err != nil {
		return fmt.Errorf("create follow: %w", err)
	}
	return nil
}

// Find returns the edge between two users if it exists.
func (r *FollowRepository) Find(ctx context.Context, followerID, followeeID string) (*models.Follow, error) {
	const query = `SELECT id, follower_id, followee_id, created_at FROM follows WHERE follower_id = $1 AND followee_id = $2 LIMIT 1`
	var follow models.Follow
	if err := r.db.GetContext(ctx, &follow, query, followerID, followeeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find follow: %w", err)
	}
	return &follow, nil
}

// Delete removes the edge between two users.
func (r *FollowRepository) Delete(ctx context.Context, followerID, followeeID string) error {
	const query = `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`
	if _, err := r.db.ExecContext(ctx, query, followerID, followeeID); err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}

// ListFollowers returns users following the given user.
func (r *FollowRepository) ListFollowers(ctx context.Context, userID string) ([]models.UserSummary, error) {
	const query = `SELECT u.id, u.username, u.display_name, u.verified FROM follows f JOIN users u ON u.id = f.follower_id WHERE f.followee_id = $1 ORDER BY f.created_at DESC`
	var users []models.UserSummary
	if err := r.db.SelectContext(ctx, &users, query, userID); err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}
	return users, nil
}

// ListFollowing returns users the given user follows.
func (r *FollowRepository) ListFollowing(ctx context.Context, userID string) ([]models.UserSummary, error) {
	const query = `SELECT u.id, u.username, u.display_name, u.verified FROM follows f JOIN users u ON u.id = f.followee_id WHERE f.follower_id = $1 ORDER BY f.created_at DESC`
	var users []models.UserSummary
	if err := r.db.SelectContext(ctx, &users, query, userID); err != nil {
		return nil, fmt.Errorf("list following: %w", err)
	}
	return users, nil
}
