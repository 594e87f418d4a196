package server

import (
	"log/slog"
	"time"

	"newsfeed/internal/cache"
	"newsfeed/internal/middleware"
	"newsfeed/internal/models"
	"newsfeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

type signupRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,strongpassword"`
}

type loginRequest struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

// Signup handles POST /api/auth/signup
func (s *Server) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := bindJSON(c, &req); err != nil {
		return models.RespondWithAppError(c, err)
	}

	user, err := s.userService.Register(c.UserContext(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	token, err := s.issueToken(c, user)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return models.RespondWithAppError(c, err)
	}

	user, err := s.userService.Authenticate(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	token, err := s.issueToken(c, user)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Logout handles POST /api/auth/logout by revoking the presented token until it expires.
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, ok := c.Locals(claimsLocalsKey).(*middleware.Claims)
	if !ok || claims.ID == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Token cannot be revoked"))
	}
	if s.redis == nil {
		return models.RespondWithAppError(c,
			&models.AppError{Code: models.CodeUnavailable, Message: "Token revocation is unavailable"})
	}

	ctx := c.UserContext()
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Sub(s.now()); remaining > 0 {
			ttl = remaining
		}
	}
	if err := s.redis.Set(ctx, cache.BlacklistKey(claims.ID), "1", ttl).Err(); err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to revoke token", slog.String("error", err.Error()))
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// issueToken signs a token for user and attaches the principal so the request's
// handler time is attributed to the new session.
func (s *Server) issueToken(c *fiber.Ctx, user *models.User) (string, error) {
	ttl := time.Duration(s.config.JWTTTLHours) * time.Hour
	token, _, err := middleware.IssueToken(s.config.JWTSecret, user.ID, user.Username, ttl, s.now())
	if err != nil {
		return "", models.NewInternalError(err)
	}
	s.setPrincipal(c, &models.Principal{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	})
	return token, nil
}
