package server

import (
	"newsfeed/internal/featureflags"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags returns the flags evaluated for the current viewer.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.featureFlags == nil {
		return c.JSON(fiber.Map{"evaluated": map[string]bool{}})
	}

	viewer := viewerID(c)
	return c.JSON(fiber.Map{
		"evaluated":      s.featureFlags.Snapshot(viewer),
		"usage_tracking": s.config.UsageTrackingEnabled && s.featureFlags.Allows(featureflags.UsageTracking, viewer),
	})
}

// GetFeatureFlagDefinitions returns the raw flag configuration (admin only).
func (s *Server) GetFeatureFlagDefinitions(c *fiber.Ctx) error {
	raw := map[string]string{}
	if s.featureFlags != nil {
		raw = s.featureFlags.Raw()
	}
	return c.JSON(fiber.Map{"raw": raw})
}
