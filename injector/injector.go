//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/connectors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/deliveries"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/middlewares"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/repositories"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/services"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/ratelimit"
)

// Infrastructure providers
var infrastructureSet = wire.NewSet(
	infrastructures.NewLogger,
	infrastructures.NewDatabase,
	infrastructures.NewRedisClient,
	infrastructures.NewValidator,
	infrastructures.NewEnforcer,
	infrastructures.NewConnectorClient,
	provideRateLimiter,
	wire.Bind(new(ratelimit.Limiter), new(*ratelimit.RedisLimiter)),
)

// Domain providers
var domainSet = wire.NewSet(
	provideAnalyzer,
	providePolicyEngine,
	repositories.NewChangeRequestRepository,
	wire.Bind(new(services.ChangeRequestStore), new(*repositories.ChangeRequestRepository)),
	connectors.NewRegistryFromConfig,
	wire.Bind(new(services.ConnectorRegistry), new(*connectors.Registry)),
)

// Service providers
var serviceSet = wire.NewSet(
	services.NewRequestLocks,
	services.NewRedisEventPublisher,
	wire.Bind(new(services.EventPublisher), new(*services.RedisEventPublisher)),
	services.NewAuthorizationService,
	services.NewValidationService,
	services.NewAuditService,
	services.NewDispatchService,
	services.NewChangeRequestService,
)

// Middleware providers
var middlewareSet = wire.NewSet(
	middlewares.NewActorMiddleware,
	middlewares.NewRateLimitMiddleware,
)

// Handler providers
var handlerSet = wire.NewSet(
	deliveries.NewHealthHandler,
	deliveries.NewSQLHandler,
	deliveries.NewChangeRequestHandler,
	deliveries.NewApprovalHandler,
	wire.Struct(new(Application), "*"),
)

// InitializeApplication initializes the application with all its dependencies
func InitializeApplication(cfg *infrastructures.AppConfig) (*Application, error) {
	wire.Build(
		infrastructureSet,
		domainSet,
		serviceSet,
		middlewareSet,
		handlerSet,
	)
	return &Application{}, nil
}
