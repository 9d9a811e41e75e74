package middlewares

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit ratelimit.Rate) (bool, ratelimit.Info) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	remaining := limit.Requests - l.counts[key]
	return remaining >= 0, ratelimit.Info{
		Limit:     limit.Requests,
		Remaining: max(remaining, 0),
		Reset:     time.Unix(1700000000, 0),
	}
}

func (l *countingLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, key)
	return nil
}

func TestActorMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/whoami", NewActorMiddleware().RequireActor, func(c *fiber.Ctx) error {
		return c.JSON(ActorFrom(c))
	})

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderActorID, "dev-1")
	req.Header.Set(HeaderActorRole, "developer")
	req.Header.Set(fiber.HeaderXForwardedFor, "10.1.2.3, 172.16.0.1")
	req.Header.Set(fiber.HeaderUserAgent, "cli/1.0")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var actor models.Actor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&actor))
	require.Equal(t, models.Actor{
		ID:            "dev-1",
		Role:          models.ActorRoleDeveloper,
		SourceAddress: "10.1.2.3",
		UserAgent:     "cli/1.0",
	}, actor)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/whoami", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var body models.WebResponse[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.Success)
	require.Equal(t, "UNAUTHORIZED", body.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := &countingLimiter{}
	cfg := &infrastructures.AppConfig{RateLimitEnabled: true, RateLimitMax: 2, RateLimitWindow: time.Minute}
	mw := NewRateLimitMiddleware(limiter, cfg)

	app := fiber.New()
	app.Get("/ping", NewActorMiddleware().RequireActor, mw.LimitByActor(), func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	call := func(actorID string) int {
		req := httptest.NewRequest(fiber.MethodGet, "/ping", nil)
		req.Header.Set(HeaderActorID, actorID)
		req.Header.Set(HeaderActorRole, "MANAGER")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusOK, call("mgr-1"))
	require.Equal(t, fiber.StatusOK, call("mgr-1"))
	require.Equal(t, fiber.StatusTooManyRequests, call("mgr-1"))
	require.Equal(t, fiber.StatusOK, call("mgr-2"))

	require.Equal(t, 3, limiter.counts["actor:mgr-1"])
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	limiter := &countingLimiter{}
	cfg := &infrastructures.AppConfig{RateLimitEnabled: false}
	mw := NewRateLimitMiddleware(limiter, cfg)

	app := fiber.New()
	app.Get("/ping", mw.LimitByIP(), func(c *fiber.Ctx) error { return c.SendString("pong") })

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	require.Empty(t, limiter.counts)
}
