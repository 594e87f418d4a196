package models

import (
	"fmt"
	"time"
)

// TargetKind names what a like edge points at.
type TargetKind string

const (
	TargetPost    TargetKind = "post"
	TargetComment TargetKind = "comment"
)

// Valid reports whether k is a known kind.
func (k TargetKind) Valid() bool {
	return k == TargetPost || k == TargetComment
}

// Like is the edge between a user and exactly one post or comment.
// Rows are created and deleted by the toggle, never updated.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post;uniqueIndex:idx_likes_user_comment" json:"user_id"`
	PostID    *uint     `gorm:"uniqueIndex:idx_likes_user_post" json:"post_id,omitempty"`
	CommentID *uint     `gorm:"uniqueIndex:idx_likes_user_comment;index" json:"comment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLike builds an edge for kind, setting exactly one target column.
func NewLike(userID uint, kind TargetKind, targetID uint) (*Like, error) {
	id := targetID
	switch kind {
	case TargetPost:
		return &Like{UserID: userID, PostID: &id}, nil
	case TargetComment:
		return &Like{UserID: userID, CommentID: &id}, nil
	default:
		return nil, fmt.Errorf("unknown like target kind %q", kind)
	}
}

// LikeTarget is the post-toggle projection of a liked post or comment.
type LikeTarget struct {
	Kind          TargetKind `json:"kind"`
	ID            uint       `json:"id"`
	PostID        uint       `json:"post_id"`
	OwnerID       uint       `json:"user_id"`
	OwnerUsername string     `json:"username"`
	Content       string     `json:"content"`
	LikeCount     int64      `json:"like_count"`
	Liked         bool       `json:"liked"`
	LikeCreatedAt *time.Time `json:"like_created_at,omitempty"`
	LikeUpdatedAt *time.Time `json:"like_updated_at,omitempty"`
}
