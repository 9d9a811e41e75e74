package injector

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/deliveries"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/policy"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/ratelimit"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Application represents the change engine's HTTP surface.
type Application struct {
	HealthHandler        *deliveries.HealthHandler
	SQLHandler           *deliveries.SQLHandler
	ChangeRequestHandler *deliveries.ChangeRequestHandler
	ApprovalHandler      *deliveries.ApprovalHandler
}

// RegisterRoutes registers all application routes using a Fiber router
func (app *Application) RegisterRoutes(router fiber.Router) {
	app.HealthHandler.RegisterRoutes(router)
	app.SQLHandler.RegisterRoutes(router)
	app.ChangeRequestHandler.RegisterRoutes(router)
	app.ApprovalHandler.RegisterRoutes(router)
}

func provideAnalyzer(cfg *infrastructures.AppConfig) *sqlimpact.Analyzer {
	return sqlimpact.New(sqlimpact.Options{
		DefaultTableRows: cfg.AnalyzerTableRows,
		TableRows:        cfg.AnalyzerTableHints,
	})
}

func providePolicyEngine(cfg *infrastructures.AppConfig) policy.Engine {
	return policy.NewEngine(policy.Config{HighImpactMode: policy.HighImpactMode(cfg.HighImpactMode)})
}

func provideRateLimiter(client *redis.Client, cfg *infrastructures.AppConfig, logger *logrus.Logger) *ratelimit.RedisLimiter {
	return ratelimit.NewRedisLimiter(client, cfg.AppName, logger)
}
