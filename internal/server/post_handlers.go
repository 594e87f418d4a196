package server

import (
	"newsfeed/internal/models"
	"newsfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

type postRequest struct {
	Content string `json:"content" validate:"notblank"`
}

// CreatePost handles POST /api/newsfeeds
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req postRequest
	if err := bindJSON(c, &req); err != nil {
		return models.RespondWithAppError(c, err)
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:  principal(c).UserID,
		Content: req.Content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

// GetAllPosts handles GET /api/newsfeeds?limit=&offset=
func (s *Server) GetAllPosts(c *fiber.Ctx) error {
	page := pageQuery(c, defaultPageSize)

	posts, err := s.postService.ListPosts(c.UserContext(), service.ListPostsInput{
		Limit:         page.Limit,
		Offset:        page.Offset,
		CurrentUserID: viewerID(c),
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(posts)
}

// GetPost handles GET /api/newsfeeds/:id. Anonymous reads are served from the
// post cache by the repository.
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	post, err := s.postService.GetPost(c.UserContext(), id, viewerID(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(post)
}

// UpdatePost handles PUT /api/newsfeeds/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	postID, err := pathID(c, "id")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	var req postRequest
	if err := bindJSON(c, &req); err != nil {
		return models.RespondWithAppError(c, err)
	}

	post, err := s.postService.UpdatePost(ctx, service.UpdatePostInput{
		UserID:  principal(c).UserID,
		PostID:  postID,
		Content: req.Content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	s.store.InvalidatePost(ctx, postID)

	return c.JSON(post)
}

// DeletePost handles DELETE /api/newsfeeds/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	ctx := c.UserContext()
	postID, err := pathID(c, "id")
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	if err := s.postService.DeletePost(ctx, service.DeletePostInput{
		UserID: principal(c).UserID,
		PostID: postID,
	}); err != nil {
		return models.RespondWithAppError(c, err)
	}
	s.store.InvalidatePost(ctx, postID)

	return c.JSON(fiber.Map{"message": "Newsfeed deleted"})
}
