package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/uzzalhcse/proxynest/internal/auth"
	"github.com/uzzalhcse/proxynest/internal/proxypool"
	"github.com/uzzalhcse/proxynest/internal/settings"
)

// respondErr maps a domain error to the HTTP status table in SPEC_FULL.md §8.
func respondErr(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	switch {
	case errors.Is(err, proxypool.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, proxypool.ErrDuplicate):
		status = fiber.StatusConflict
	case errors.Is(err, proxypool.ErrInstanceSaturated):
		status = fiber.StatusConflict
	case errors.Is(err, proxypool.ErrNoProxyAvailable):
		status = fiber.StatusNotFound
	case errors.Is(err, proxypool.ErrNotHeld):
		status = fiber.StatusNotFound
	case errors.Is(err, proxypool.ErrFieldForbidden), errors.Is(err, proxypool.ErrInvalidType):
		status = fiber.StatusBadRequest
	case errors.Is(err, settings.ErrEmpty):
		status = fiber.StatusBadRequest
	case errors.Is(err, proxypool.ErrStoreUnavailable):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = fiber.StatusUnauthorized
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": err.Error(),
	})
}
