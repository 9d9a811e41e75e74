package deliveries

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/middlewares"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/pkg"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/services"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
)

// ApprovalHandler serves the reviewer's queue.
type ApprovalHandler struct {
	lifecycle       *services.ChangeRequestService
	validator       *infrastructures.Validator
	actorMiddleware *middlewares.ActorMiddleware
	rateLimit       *middlewares.RateLimitMiddleware
}

func NewApprovalHandler(
	lifecycle *services.ChangeRequestService,
	validator *infrastructures.Validator,
	actorMiddleware *middlewares.ActorMiddleware,
	rateLimit *middlewares.RateLimitMiddleware,
) *ApprovalHandler {
	return &ApprovalHandler{
		lifecycle:       lifecycle,
		validator:       validator,
		actorMiddleware: actorMiddleware,
		rateLimit:       rateLimit,
	}
}

func (h *ApprovalHandler) RegisterRoutes(router fiber.Router) {
	group := router.Group("/approvals", h.actorMiddleware.RequireActor, h.rateLimit.LimitByActor())
	group.Get("/pending", h.GetPending)
}

func (h *ApprovalHandler) GetPending(c *fiber.Ctx) error {
	var query models.PaginationRequest
	if err := pkg.ParseQuery(c, &query); err != nil {
		return pkg.ErrorResponse(c, err)
	}
	if err := h.validator.Validate(&query); err != nil {
		return pkg.ErrorResponse(c, err)
	}

	page, err := h.lifecycle.PendingApprovals(c.UserContext(), middlewares.ActorFrom(c), query.Page, query.Limit)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, page)
}
