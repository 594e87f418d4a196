package service

import (
	"context"
	"strings"

	"newsfeed/internal/models"
	"newsfeed/internal/notifications"
	"newsfeed/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPostLen      = 50000
)

type PostService struct {
	postRepo repository.PostRepository
	notifier *notifications.Notifier
	isAdmin  func(ctx context.Context, userID uint) (bool, error)
}

type CreatePostInput struct {
	UserID  uint
	Content string
}

type ListPostsInput struct {
	Limit         int
	Offset        int
	CurrentUserID uint
}

type UpdatePostInput struct {
	UserID  uint
	PostID  uint
	Content string
}

type DeletePostInput struct {
	UserID uint
	PostID uint
}

func NewPostService(
	postRepo repository.PostRepository,
	notifier *notifications.Notifier,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
) *PostService {
	return &PostService{
		postRepo: postRepo,
		notifier: notifier,
		isAdmin:  isAdmin,
	}
}

func validatePostContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if len(content) > maxPostLen {
		return models.NewValidationError("Content too long (max 50000 characters)")
	}
	return nil
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validatePostContent(in.Content); err != nil {
		return nil, err
	}

	post := &models.Post{
		UserID:  in.UserID,
		Content: in.Content,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	created, err := s.postRepo.GetByID(ctx, post.ID, in.UserID)
	if err != nil {
		return nil, err
	}
	broadcast(ctx, s.notifier, notifications.Event{
		Type: notifications.EventPostCreated,
		Payload: map[string]any{
			"post_id":  created.ID,
			"username": created.Username,
		},
	})
	return created, nil
}

func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	limit, offset := clampPage(in.Limit, in.Offset)
	return s.postRepo.List(ctx, limit, offset, in.CurrentUserID)
}

func (s *PostService) GetPost(ctx context.Context, postID, currentUserID uint) (*models.Post, error) {
	return s.postRepo.GetByID(ctx, postID, currentUserID)
}

// UpdatePost edits content. Only the author may edit; admins may delete but not rewrite.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		return nil, err
	}
	if post.UserID != in.UserID {
		return nil, models.NewForbiddenError("Only the author can edit this newsfeed")
	}
	if err := validatePostContent(in.Content); err != nil {
		return nil, err
	}

	post.Content = in.Content
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, in.PostID, in.UserID)
}

func (s *PostService) DeletePost(ctx context.Context, in DeletePostInput) error {
	post, err := s.postRepo.GetByID(ctx, in.PostID, in.UserID)
	if err != nil {
		return err
	}
	if err := ensureOwnerOrAdmin(ctx, s.isAdmin, post.UserID, in.UserID, "Newsfeed"); err != nil {
		return err
	}
	if err := s.postRepo.Delete(ctx, in.PostID); err != nil {
		return err
	}

	broadcast(ctx, s.notifier, notifications.Event{
		Type:    notifications.EventPostDeleted,
		Payload: map[string]any{"post_id": in.PostID},
	})
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func ensureOwnerOrAdmin(
	ctx context.Context,
	isAdmin func(ctx context.Context, userID uint) (bool, error),
	ownerID, actorID uint,
	resource string,
) error {
	if ownerID == actorID {
		return nil
	}
	if isAdmin != nil {
		admin, err := isAdmin(ctx, actorID)
		if err != nil {
			return err
		}
		if admin {
			return nil
		}
	}
	return models.NewForbiddenError("Not allowed to delete this " + strings.ToLower(resource))
}
