package server

import (
	"newsfeed/internal/models"
	"newsfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// TogglePostLike handles PUT /api/newsfeeds/:id/like
func (s *Server) TogglePostLike(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	target, err := s.likeService.Toggle(c.UserContext(), service.ToggleLikeInput{
		Actor:    principal(c).Username,
		TargetID: postID,
		Kind:     models.TargetPost,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(target)
}

// ToggleCommentLike handles PUT /api/newsfeeds/:id/comments/:commentId/like.
// The comment must belong to the newsfeed in the path.
func (s *Server) ToggleCommentLike(c *fiber.Ctx) error {
	ctx := c.UserContext()
	postID, err := pathID(c, "id")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	commentID, err := pathID(c, "commentId")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	p := principal(c)
	if _, err := s.commentService.GetComment(ctx, postID, commentID, p.UserID); err != nil {
		return models.RespondWithAppError(c, err)
	}

	target, err := s.likeService.Toggle(ctx, service.ToggleLikeInput{
		Actor:    p.Username,
		TargetID: commentID,
		Kind:     models.TargetComment,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(target)
}
