package server

import (
	"newsfeed/internal/models"
	"newsfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

type commentRequest struct {
	Content string `json:"content" validate:"notblank"`
}

// CreateComment creates a comment on a newsfeed (protected)
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	var req commentRequest
	if err := bindJSON(c, &req); err != nil {
		return models.RespondWithAppError(c, err)
	}

	created, err := s.commentService.CreateComment(c.UserContext(), service.CreateCommentInput{
		UserID:  principal(c).UserID,
		PostID:  postID,
		Content: req.Content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetComments returns all comments for a newsfeed (public)
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	comments, err := s.commentService.ListComments(c.UserContext(), postID, viewerID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(comments)
}

// UpdateComment edits a comment (author only)
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	commentID, err := pathID(c, "commentId")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	var req commentRequest
	if err := bindJSON(c, &req); err != nil {
		return models.RespondWithAppError(c, err)
	}

	updated, err := s.commentService.UpdateComment(c.UserContext(), service.UpdateCommentInput{
		UserID:    principal(c).UserID,
		PostID:    postID,
		CommentID: commentID,
		Content:   req.Content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(updated)
}

// DeleteComment removes a comment (author or admin)
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	commentID, err := pathID(c, "commentId")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	if err := s.commentService.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		UserID:    principal(c).UserID,
		PostID:    postID,
		CommentID: commentID,
	}); err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Comment deleted"})
}
