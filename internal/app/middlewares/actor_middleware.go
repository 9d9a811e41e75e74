package middlewares

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/pkg"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	actorLocal = "actor"
)

// ActorMiddleware turns the identity asserted by the authenticating gateway
// into a models.Actor. Role permissions are checked later by the services.
type ActorMiddleware struct{}

func NewActorMiddleware() *ActorMiddleware {
	return &ActorMiddleware{}
}

func (m *ActorMiddleware) RequireActor(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Get(HeaderActorID))
	role := strings.ToUpper(strings.TrimSpace(c.Get(HeaderActorRole)))
	if id == "" || role == "" {
		return pkg.ErrorResponse(c, errors.NewUnauthorizedError("Missing actor identity headers"))
	}

	c.Locals(actorLocal, models.Actor{
		ID:            id,
		Role:          models.ActorRole(role),
		SourceAddress: clientIP(c),
		UserAgent:     c.Get(fiber.HeaderUserAgent),
	})
	return c.Next()
}

// ActorFrom returns the actor stored by RequireActor, or the zero Actor.
func ActorFrom(c *fiber.Ctx) models.Actor {
	actor, _ := c.Locals(actorLocal).(models.Actor)
	return actor
}

func clientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xrip := c.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	return c.IP()
}
