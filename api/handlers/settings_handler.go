package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/uzzalhcse/proxynest/internal/settings"
	"github.com/uzzalhcse/proxynest/pkg/models"
)

// SettingsHandler exposes SettingsRegistry over HTTP.
type SettingsHandler struct {
	registry *settings.Registry
}

func NewSettingsHandler(registry *settings.Registry) *SettingsHandler {
	return &SettingsHandler{registry: registry}
}

// Get handles GET /api/v1/settings.
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "success", "settings": h.registry.Snapshot()})
}

// Update handles PATCH /api/v1/settings.
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var patch models.SettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid request body"})
	}

	updated, err := h.registry.Update(context.Background(), patch)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "success", "settings": updated})
}
