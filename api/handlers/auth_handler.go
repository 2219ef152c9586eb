package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/uzzalhcse/proxynest/internal/auth"
)

// AuthHandler exposes the admin password-reset flow.
type AuthHandler struct {
	service *auth.Service
}

func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

// ResetPassword handles POST /api/v1/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req struct {
		Username    string `json:"username"`
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid request body"})
	}

	if err := h.service.ResetPassword(context.Background(), req.Username, req.OldPassword, req.NewPassword); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "success"})
}
