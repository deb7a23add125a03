package handlers

import (
	"errors"

	"github.com/famcare/backend/internal/services"
	"github.com/famcare/backend/pkg/logger"
	"github.com/famcare/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// respondServiceError maps engine failure kinds onto transport codes. Anything
// unclassified is logged and reported with the handler's fallback message so
// store internals never leak to callers.
func respondServiceError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrConflict):
		return utils.Error(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrForbidden):
		return utils.Error(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrAllocationExhausted):
		return utils.Error(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, services.ErrUnavailable):
		return utils.Error(c, fiber.StatusBadGateway, err.Error())
	default:
		logger.Error("handler_internal_error", map[string]interface{}{
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, fallback)
	}
}
