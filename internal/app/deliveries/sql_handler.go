package deliveries

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/middlewares"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/pkg"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/services"
)

type SQLHandler struct {
	lifecycle       *services.ChangeRequestService
	actorMiddleware *middlewares.ActorMiddleware
	rateLimit       *middlewares.RateLimitMiddleware
}

func NewSQLHandler(lifecycle *services.ChangeRequestService, actorMiddleware *middlewares.ActorMiddleware, rateLimit *middlewares.RateLimitMiddleware) *SQLHandler {
	return &SQLHandler{
		lifecycle:       lifecycle,
		actorMiddleware: actorMiddleware,
		rateLimit:       rateLimit,
	}
}

func (h *SQLHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/sql/analyze", h.actorMiddleware.RequireActor, h.rateLimit.LimitByActor(), h.Analyze)
}

// Analyze returns an impact verdict without creating a request.
func (h *SQLHandler) Analyze(c *fiber.Ctx) error {
	var dto models.AnalyzeSQLRequest
	if err := pkg.ParseBody(c, &dto); err != nil {
		return pkg.ErrorResponse(c, err)
	}

	verdict, err := h.lifecycle.ValidateSQL(c.UserContext(), middlewares.ActorFrom(c), &dto)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, verdict)
}
