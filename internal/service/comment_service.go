package service

import (
	"context"
	"strings"

	"newsfeed/internal/cache"
	"newsfeed/internal/models"
	"newsfeed/internal/notifications"
	"newsfeed/internal/repository"
)

const maxCommentLen = 10000

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	store       *cache.Store
	notifier    *notifications.Notifier
	isAdmin     func(ctx context.Context, userID uint) (bool, error)
}

type CreateCommentInput struct {
	UserID  uint
	PostID  uint
	Content string
}

type UpdateCommentInput struct {
	UserID    uint
	PostID    uint
	CommentID uint
	Content   string
}

type DeleteCommentInput struct {
	UserID    uint
	PostID    uint
	CommentID uint
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	store *cache.Store,
	notifier *notifications.Notifier,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		store:       store,
		notifier:    notifier,
		isAdmin:     isAdmin,
	}
}

func validateCommentContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if len(content) > maxCommentLen {
		return models.NewValidationError("Comment too long (max 10000 characters)")
	}
	return nil
}

func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID, 0)
	if err != nil {
		return nil, err
	}
	if err := validateCommentContent(in.Content); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		Content: in.Content,
		UserID:  in.UserID,
		PostID:  in.PostID,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	s.store.InvalidatePost(ctx, in.PostID)

	created, err := s.commentRepo.GetByID(ctx, comment.ID, in.UserID)
	if err != nil {
		return nil, err
	}
	if post.UserID != in.UserID {
		notifyUser(ctx, s.notifier, post.UserID, notifications.Event{
			Type: notifications.EventCommentCreated,
			Payload: map[string]any{
				"post_id":    in.PostID,
				"comment_id": created.ID,
				"username":   created.Username,
			},
		})
	}
	return created, nil
}

func (s *CommentService) ListComments(ctx context.Context, postID, currentUserID uint) ([]*models.Comment, error) {
	if _, err := s.postRepo.GetByID(ctx, postID, 0); err != nil {
		return nil, err
	}
	return s.commentRepo.ListByPost(ctx, postID, currentUserID)
}

// GetComment loads a comment and checks that it hangs off postID.
func (s *CommentService) GetComment(ctx context.Context, postID, commentID, currentUserID uint) (*models.Comment, error) {
	comment, err := s.commentRepo.GetByID(ctx, commentID, currentUserID)
	if err != nil {
		return nil, err
	}
	if comment.PostID != postID {
		return nil, models.NewNotFoundError("Comment", commentID)
	}
	return comment, nil
}

func (s *CommentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	comment, err := s.GetComment(ctx, in.PostID, in.CommentID, in.UserID)
	if err != nil {
		return nil, err
	}
	if comment.UserID != in.UserID {
		return nil, models.NewForbiddenError("Only the author can edit this comment")
	}
	if err := validateCommentContent(in.Content); err != nil {
		return nil, err
	}

	comment.Content = in.Content
	if err := s.commentRepo.Update(ctx, comment); err != nil {
		return nil, err
	}
	return s.commentRepo.GetByID(ctx, in.CommentID, in.UserID)
}

func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) error {
	comment, err := s.GetComment(ctx, in.PostID, in.CommentID, in.UserID)
	if err != nil {
		return err
	}
	if err := ensureOwnerOrAdmin(ctx, s.isAdmin, comment.UserID, in.UserID, "Comment"); err != nil {
		return err
	}
	if err := s.commentRepo.Delete(ctx, in.CommentID); err != nil {
		return err
	}
	s.store.InvalidatePost(ctx, in.PostID)

	broadcast(ctx, s.notifier, notifications.Event{
		Type: notifications.EventCommentDeleted,
		Payload: map[string]any{
			"post_id":    in.PostID,
			"comment_id": in.CommentID,
		},
	})
	return nil
}
