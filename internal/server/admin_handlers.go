package server

import (
	"newsfeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

const defaultTopUsers = 10

// GetTopUsage handles GET /api/admin/usage/top?limit= (admin only)
func (s *Server) GetTopUsage(c *fiber.Ctx) error {
	page := pageQuery(c, defaultTopUsers)

	entries, err := s.usageService.Top(c.UserContext(), page.Limit)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(entries)
}

// GetUserUsage handles GET /api/admin/usage/:username (admin only). Withdrawn
// accounts are still reported.
func (s *Server) GetUserUsage(c *fiber.Ctx) error {
	entry, err := s.usageService.GetUsageByUsername(c.UserContext(), c.Params("username"))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(entry)
}
