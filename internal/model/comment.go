package model

import "time"

// CommentRef points from a user document to a comment the user wrote.
type CommentRef struct {
	CommentID string `json:"commentId"`
	MovieID   string `json:"movieId"`
}

// Comment is a user's remark on a movie, stored in the "comments" collection.
type Comment struct {
	ID        string    `json:"id"`
	MovieID   string    `json:"movieId"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Rev       string    `json:"_rev,omitempty"`
}
