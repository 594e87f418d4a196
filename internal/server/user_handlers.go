package server

import (
	"context"
	"time"

	"newsfeed/internal/models"
	"newsfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

type updateProfileRequest struct {
	Username string `json:"username" validate:"omitempty,username"`
	Bio      string `json:"bio" validate:"max=500"`
	Avatar   string `json:"avatar" validate:"omitempty,url"`
}

type withdrawRequest struct {
	Password string `json:"password" validate:"required"`
}

// GetProfile handles GET /api/users/:username/profile
func (s *Server) GetProfile(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	user, err := s.userService.GetProfile(ctx, c.Params("username"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(user)
}

// GetMe handles GET /api/users/me
func (s *Server) GetMe(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.UserContext(), principal(c).UserID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(user)
}

// UpdateMe handles PUT /api/users/me
func (s *Server) UpdateMe(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		return models.RespondWithAppError(c, err)
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:   principal(c).UserID,
		Username: req.Username,
		Bio:      req.Bio,
		Avatar:   req.Avatar,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(user)
}

// Withdraw handles PUT /api/users/me/withdraw. The account keeps its content but can
// no longer log in, like or be resolved as an actor.
func (s *Server) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := bindJSON(c, &req); err != nil {
		return models.RespondWithAppError(c, err)
	}

	if err := s.userService.Withdraw(c.UserContext(), principal(c).UserID, req.Password); err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Account withdrawn"})
}

// GetMyUsage handles GET /api/users/me/usage
func (s *Server) GetMyUsage(c *fiber.Ctx) error {
	rec, err := s.usageService.GetUsage(c.UserContext(), principal(c).UserID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(rec)
}
