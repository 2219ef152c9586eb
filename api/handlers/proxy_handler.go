package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/uzzalhcse/proxynest/internal/logger"
	"github.com/uzzalhcse/proxynest/internal/proxypool"
	"github.com/uzzalhcse/proxynest/pkg/models"
	"go.uber.org/zap"
)

// ProxyHandler is the AdminFacade's translation layer over ProxyRegistry
// and AssignmentEngine: it parses inputs, delegates, and maps domain
// errors to HTTP status codes. No business logic lives here.
type ProxyHandler struct {
	registry *proxypool.Registry
	engine   *proxypool.Engine
}

func NewProxyHandler(registry *proxypool.Registry, engine *proxypool.Engine) *ProxyHandler {
	return &ProxyHandler{registry: registry, engine: engine}
}

// AddProxy handles POST /api/v1/proxies.
func (h *ProxyHandler) AddProxy(c *fiber.Ctx) error {
	var req struct {
		IP          string   `json:"ip"`
		Port        int      `json:"port"`
		Username    *string  `json:"username"`
		Password    *string  `json:"password"`
		Protocol    string   `json:"protocol"`
		CountryCode *string  `json:"country_code"`
		Tags        []string `json:"tags"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid request body"})
	}

	protocol, err := models.ParseProtocol(req.Protocol)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": err.Error()})
	}

	proxy := &models.Proxy{
		IP: req.IP, Port: req.Port, Username: req.Username, Password: req.Password,
		Protocol: protocol, CountryCode: req.CountryCode, Tags: models.TagList(req.Tags),
	}

	created, err := h.registry.Add(context.Background(), proxy)
	if err != nil {
		return respondErr(c, err)
	}

	logger.Info("proxy added", zap.String("proxy_id", created.ID))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "success", "id": created.ID})
}

// ListProxies handles GET /api/v1/proxies?tags=a,b.
func (h *ProxyHandler) ListProxies(c *fiber.Ctx) error {
	var tags []string
	if raw := c.Query("tags", ""); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	proxies, err := h.registry.List(context.Background(), tags)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "success", "proxies": proxies})
}

// AssignProxy handles POST /api/v1/proxies/assign.
func (h *ProxyHandler) AssignProxy(c *fiber.Ctx) error {
	var req struct {
		InstanceID string   `json:"instance_id"`
		Country    *string  `json:"country"`
		Tags       []string `json:"tags"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid request body"})
	}
	if req.InstanceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "instance_id is required"})
	}

	result, err := h.engine.Assign(context.Background(), req.InstanceID, req.Country, req.Tags)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{
		"status":   "success",
		"proxy_id": result.ProxyID,
		"ip":       result.IP,
		"port":     result.Port,
		"username": result.Username,
		"password": result.Password,
		"protocol": result.Protocol,
	})
}

// EditProxy handles PATCH /api/v1/proxies/:id.
func (h *ProxyHandler) EditProxy(c *fiber.Ctx) error {
	id := c.Params("id")

	var patch map[string]interface{}
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": "error", "message": "invalid request body"})
	}

	updated, err := h.registry.Edit(context.Background(), id, patch)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "success", "proxy": updated})
}

// DeleteProxy handles DELETE /api/v1/proxies/:id.
func (h *ProxyHandler) DeleteProxy(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.registry.Delete(context.Background(), id); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "success"})
}

// RefreshUsage handles POST /api/v1/proxies/:id/refresh.
func (h *ProxyHandler) RefreshUsage(c *fiber.Ctx) error {
	id := c.Params("id")

	var req struct {
		InstanceID *string `json:"instance_id"`
	}
	_ = c.BodyParser(&req)

	if err := h.engine.RefreshUsage(context.Background(), id, req.InstanceID); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "success"})
}

// ClearInstanceProxies handles POST /api/v1/instances/:instance_id/clear.
func (h *ProxyHandler) ClearInstanceProxies(c *fiber.Ctx) error {
	instanceID := c.Params("instance_id")

	cleared, err := h.engine.ClearLease(context.Background(), instanceID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "success", "cleared_proxy_ids": cleared})
}

// ClearInstanceFromProxy handles POST /api/v1/proxies/:id/instances/:instance_id/clear.
func (h *ProxyHandler) ClearInstanceFromProxy(c *fiber.Ctx) error {
	proxyID := c.Params("id")
	instanceID := c.Params("instance_id")

	if err := h.engine.ClearLeaseOn(context.Background(), proxyID, instanceID); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "success"})
}

// ResetAllProxies handles POST /api/v1/proxies/reset.
func (h *ProxyHandler) ResetAllProxies(c *fiber.Ctx) error {
	n, err := h.registry.ResetAllLeases(context.Background())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "success", "reset_count": n})
}

