package models

import "time"

// Follow is a directed edge in the social graph.
type Follow struct {
	ID         string    `db:"id" json:"id"`
	FollowerID string    `db:"follower_id" json:"follower_id"`
	FolloweeID string    `db:"followee_id" json:"followee_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
