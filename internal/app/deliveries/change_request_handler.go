package deliveries

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/middlewares"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/pkg"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/services"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
)

type ChangeRequestHandler struct {
	lifecycle       *services.ChangeRequestService
	dispatcher      *services.DispatchService
	validator       *infrastructures.Validator
	actorMiddleware *middlewares.ActorMiddleware
	rateLimit       *middlewares.RateLimitMiddleware
}

func NewChangeRequestHandler(
	lifecycle *services.ChangeRequestService,
	dispatcher *services.DispatchService,
	validator *infrastructures.Validator,
	actorMiddleware *middlewares.ActorMiddleware,
	rateLimit *middlewares.RateLimitMiddleware,
) *ChangeRequestHandler {
	return &ChangeRequestHandler{
		lifecycle:       lifecycle,
		dispatcher:      dispatcher,
		validator:       validator,
		actorMiddleware: actorMiddleware,
		rateLimit:       rateLimit,
	}
}

func (h *ChangeRequestHandler) RegisterRoutes(router fiber.Router) {
	group := router.Group("/requests", h.actorMiddleware.RequireActor, h.rateLimit.LimitByActor())

	group.Post("/", h.CreateRequest)
	group.Get("/", h.ListRequests)
	group.Get("/stats", h.GetStats)
	group.Get("/:id", h.GetRequest)
	group.Patch("/:id", h.UpdateRequest)
	group.Get("/:id/audit", h.GetAudit)

	group.Post("/:id/validate-sql", h.ValidateSQL)
	group.Post("/:id/submit", h.Submit)
	group.Post("/:id/resubmit", h.Resubmit)
	group.Post("/:id/decisions", h.Decide)
	group.Post("/:id/cancel", h.Cancel)
	group.Post("/:id/dispatch", h.Dispatch)
	group.Post("/:id/reconcile", h.Reconcile)
}

func (h *ChangeRequestHandler) CreateRequest(c *fiber.Ctx) error {
	var dto models.ChangeRequestCreateRequest
	if err := pkg.ParseBody(c, &dto); err != nil {
		return pkg.ErrorResponse(c, err)
	}

	req, err := h.lifecycle.Create(c.UserContext(), middlewares.ActorFrom(c), &dto)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.CreatedResponse(c, req)
}

func (h *ChangeRequestHandler) ListRequests(c *fiber.Ctx) error {
	var filter models.ChangeRequestFilter
	if err := pkg.ParseQuery(c, &filter); err != nil {
		return pkg.ErrorResponse(c, err)
	}

	page, err := h.lifecycle.List(c.UserContext(), middlewares.ActorFrom(c), &filter)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, page)
}

func (h *ChangeRequestHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.lifecycle.Stats(c.UserContext(), middlewares.ActorFrom(c))
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, stats)
}

func (h *ChangeRequestHandler) GetRequest(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	detail, err := h.lifecycle.Get(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, detail)
}

func (h *ChangeRequestHandler) UpdateRequest(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	var dto models.ChangeRequestUpdateRequest
	if err := pkg.ParseBody(c, &dto); err != nil {
		return pkg.ErrorResponse(c, err)
	}

	req, err := h.lifecycle.UpdateDraft(c.UserContext(), middlewares.ActorFrom(c), id, &dto)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, req)
}

func (h *ChangeRequestHandler) GetAudit(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	var query models.AuditPageRequest
	if err := pkg.ParseQuery(c, &query); err != nil {
		return pkg.ErrorResponse(c, err)
	}
	if err := h.validator.Validate(&query); err != nil {
		return pkg.ErrorResponse(c, err)
	}

	page, err := h.lifecycle.AuditPage(c.UserContext(), middlewares.ActorFrom(c), id, query.After, query.Limit)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, page)
}

func (h *ChangeRequestHandler) ValidateSQL(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	req, err := h.lifecycle.AttachVerdict(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, req)
}

func (h *ChangeRequestHandler) Submit(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	req, err := h.lifecycle.Submit(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, req)
}

func (h *ChangeRequestHandler) Resubmit(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	req, err := h.lifecycle.Resubmit(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, req)
}

func (h *ChangeRequestHandler) Decide(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	var dto models.DecisionRequest
	if err := pkg.ParseBody(c, &dto); err != nil {
		return pkg.ErrorResponse(c, err)
	}

	req, err := h.lifecycle.Decide(c.UserContext(), middlewares.ActorFrom(c), id, &dto)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, req)
}

func (h *ChangeRequestHandler) Cancel(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	// The body is optional.
	var dto models.CancelRequest
	if len(c.Body()) > 0 {
		if err := pkg.ParseBody(c, &dto); err != nil {
			return pkg.ErrorResponse(c, err)
		}
	}

	req, err := h.lifecycle.Cancel(c.UserContext(), middlewares.ActorFrom(c), id, &dto)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, req)
}

func (h *ChangeRequestHandler) Dispatch(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	req, err := h.dispatcher.Dispatch(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, req)
}

func (h *ChangeRequestHandler) Reconcile(c *fiber.Ctx) error {
	id, err := pkg.ParseID(c, "id")
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	var dto models.ReconcileRequest
	if err := pkg.ParseBody(c, &dto); err != nil {
		return pkg.ErrorResponse(c, err)
	}
	if err := h.validator.Validate(&dto); err != nil {
		return pkg.ErrorResponse(c, err)
	}

	req, err := h.dispatcher.Reconcile(c.UserContext(), middlewares.ActorFrom(c), id, &dto)
	if err != nil {
		return pkg.ErrorResponse(c, err)
	}

	return pkg.SuccessResponse(c, req)
}
