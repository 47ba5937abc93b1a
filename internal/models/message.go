package models

import "time"

// Message is a direct message between two users.
type Message struct {
	ID          string    `db:"id" json:"id"`
	SenderID    string    `db:"sender_id" json:"sender_id"`
	RecipientID string    `db:"recipient_id" json:"recipient_id"`
	Body        string    `db:"body" json:"body"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// MessageFilter captures paging for conversation reads.
type MessageFilter struct {
	Page     int
	PageSize int
}
