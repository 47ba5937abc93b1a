package models

import "time"

// Post represents a user-authored post.
type Post struct {
	ID        string    `db:"id" json:"id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PostFilter captures filtering criteria for listing posts.
type PostFilter struct {
	AuthorID string
	Page     int
	PageSize int
}
