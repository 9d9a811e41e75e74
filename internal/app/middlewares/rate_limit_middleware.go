package middlewares

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/pkg"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/ratelimit"
)

// RateLimitMiddleware throttles callers with a shared sliding window.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rate    ratelimit.Rate
	enabled bool
}

func NewRateLimitMiddleware(limiter ratelimit.Limiter, cfg *infrastructures.AppConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		rate: ratelimit.Rate{
			Requests: cfg.RateLimitMax,
			Window:   cfg.RateLimitWindow,
		},
		enabled: cfg.RateLimitEnabled,
	}
}

// LimitByIP keys the window on the client address.
func (m *RateLimitMiddleware) LimitByIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return m.handleRateLimit(c, "ip:"+clientIP(c))
	}
}

// LimitByActor keys the window on the actor set by ActorMiddleware, falling
// back to the client address.
func (m *RateLimitMiddleware) LimitByActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if actor := ActorFrom(c); actor.ID != "" {
			return m.handleRateLimit(c, "actor:"+actor.ID)
		}
		return m.handleRateLimit(c, "ip:"+clientIP(c))
	}
}

func (m *RateLimitMiddleware) handleRateLimit(c *fiber.Ctx, key string) error {
	if !m.enabled {
		return c.Next()
	}

	allowed, info := m.limiter.Allow(c.UserContext(), key, m.rate)

	c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(info.Reset.Unix(), 10))

	if !allowed {
		return pkg.ErrorResponse(c, errors.NewTooManyRequestsError("Rate limit exceeded", info.Limit, info.Reset.Unix()))
	}
	return c.Next()
}
