package server

import (
	"strings"

	"newsfeed/internal/middleware"
	"newsfeed/internal/models"
	"newsfeed/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// page is a limit/offset window read from the query string.
type page struct {
	Limit  int
	Offset int
}

// pageQuery reads ?limit=&offset=. Out-of-range values fall back to the
// default limit and a zero offset; limits above maxPageSize are clamped.
func pageQuery(c *fiber.Ctx, defaultLimit int) page {
	p := page{Limit: c.QueryInt("limit", defaultLimit), Offset: c.QueryInt("offset", 0)}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	p.Limit = min(p.Limit, maxPageSize)
	p.Offset = max(p.Offset, 0)
	return p
}

// pathID reads a positive numeric route parameter.
func pathID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("Invalid " + paramLabel(param))
	}
	return uint(id), nil
}

// paramLabel names a route parameter in error messages: "commentId" reads
// as "comment ID".
func paramLabel(param string) string {
	if param == "id" {
		return "ID"
	}
	if name, ok := strings.CutSuffix(param, "Id"); ok {
		return strings.ToLower(name) + " ID"
	}
	return param
}

// bindJSON decodes the request body into req and checks its validate tags.
func bindJSON(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}

// principal returns the authenticated principal. Routes behind AuthRequired always have one.
func principal(c *fiber.Ctx) *models.Principal {
	return middleware.PrincipalFrom(c)
}

// viewerID is the requesting user's id, 0 for anonymous reads.
func viewerID(c *fiber.Ctx) uint {
	if p := middleware.PrincipalFrom(c); p != nil {
		return p.UserID
	}
	return 0
}
