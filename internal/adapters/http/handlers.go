package http

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/JoseluisLarrazabal/lqq-discovery/internal/core/domain"
)

const maxSearchLength = 100

// ListFacilitiesHandler serves GET /facilities?type=<category>&search=<text>
// with the body {"items": [...]}.
func ListFacilitiesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := domain.FilterState{
			Category:   strings.TrimSpace(c.Query("type")),
			SearchText: c.Query("search"),
		}
		if utf8.RuneCountInString(filter.SearchText) > maxSearchLength {
			return errBadRequest(c, "search must be at most 100 characters")
		}

		records, err := deps.Facilities.List(c.UserContext(), filter)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("list facilities", "error", err)
			return errInternal(c, "failed to list facilities")
		}

		return c.JSON(domain.FacilityList{Items: records})
	}
}

// GetFacilityHandler serves GET /facilities/:id.
func GetFacilityHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		record, err := deps.Facilities.GetByID(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errNotFound(c, "facility not found")
			}
			LoggerFromCtx(c.UserContext()).Error("get facility", "id", id, "error", err)
			return errInternal(c, "failed to load facility")
		}

		return c.JSON(record)
	}
}

// FacilityCountHandler serves GET /v1/stats.
func FacilityCountHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := deps.Facilities.Count(c.UserContext())
		if err != nil {
			return errInternal(c, "failed to count facilities")
		}
		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(fiber.Map{"facilities": n})
	}
}
