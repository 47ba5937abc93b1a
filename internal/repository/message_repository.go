package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kiteline/kiteline-api/internal/models"
)

// MessageRepository provides database access for direct messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new instance of MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a direct message.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, recipient_id, body, created_at) VALUES (:id, :sender_id, :recipient_id, :body, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListConversation returns messages exchanged between two users, oldest first.
func (r *MessageRepository) ListConversation(ctx context.Context, userA, userB string, filter models.MessageFilter) ([]models.Message, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT id, sender_id, recipient_id, body, created_at FROM messages WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1) ORDER BY created_at ASC LIMIT %d OFFSET %d`, pageSize, offset)
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, listQuery, userA, userB); err != nil {
		return nil, 0, fmt.Errorf("list conversation: %w", err)
	}

	var total int
	const countQuery = `SELECT COUNT(*) FROM messages WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)`
	if err := r.db.GetContext(ctx, &total, countQuery, userA, userB); err != nil {
		return nil, 0, fmt.Errorf("count conversation: %w", err)
	}

	return msgs, total, nil
}
