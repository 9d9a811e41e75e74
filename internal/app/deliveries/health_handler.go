package deliveries

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/pkg"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthHandler struct {
	appName string
}

func NewHealthHandler(cfg *infrastructures.AppConfig) *HealthHandler {
	return &HealthHandler{appName: cfg.AppName}
}

func (h *HealthHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.GetHealth)
	router.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (h *HealthHandler) GetHealth(c *fiber.Ctx) error {
	return pkg.SuccessResponse(c, h.appName)
}
