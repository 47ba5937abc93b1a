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

// PostRepository provides database access for posts.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository creates a new instance of PostRepository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// Create inserts a new post.
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	const query = `INSERT INTO posts (id, author_id, body, created_at, updated_at) VALUES (:id, :author_id, :body, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// FindByID returns a post by identifier.
func (r *PostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	const query = `SELECT id, author_id, body, created_at, updated_at FROM posts WHERE id = $1 LIMIT 1`
	var post models.Post
	if err := r.db.GetContext(ctx, &post, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find post by id: %w", err)
	}
	return &post, nil
}

// ListByAuthor returns an author's posts with total count, newest first.
func (r *PostRepository) ListByAuthor(ctx context.Context, filter models.PostFilter) ([]models.Post, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT id, author_id, body, created_at, updated_at FROM posts WHERE author_id = $1 ORDER BY created_at DESC LIMIT %d OFFSET %d`, pageSize, offset)
	var posts []models.Post
	if err := r.db.SelectContext(ctx, &posts, listQuery, filter.AuthorID); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM posts WHERE author_id = $1`, filter.AuthorID); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	return posts, total, nil
}

// Delete removes a post permanently.
func (r *PostRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM posts WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}
