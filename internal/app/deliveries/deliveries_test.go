package deliveries

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/connectors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/middlewares"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/pkg"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/repositories"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/services"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/policy"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/ratelimit"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, *models.ChangeRequest, []models.AuditEvent) error {
	return nil
}

type allowAll struct{}

func (allowAll) Allow(_ context.Context, _ string, limit ratelimit.Rate) (bool, ratelimit.Info) {
	return true, ratelimit.Info{Limit: limit.Requests, Remaining: limit.Requests, Reset: time.Now()}
}

func (allowAll) Reset(context.Context, string) error { return nil }

func newTestApp(t *testing.T) (*fiber.App, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := &infrastructures.AppConfig{
		AppName:          "change-engine",
		DispatchTimeout:  time.Second,
		HighImpactMode:   "elevate",
		RateLimitEnabled: true,
		RateLimitMax:     100,
		RateLimitWindow:  time.Minute,
	}

	enforcer, err := infrastructures.NewEnforcer()
	require.NoError(t, err)
	validator := infrastructures.NewValidator()
	store := repositories.NewChangeRequestRepository(db)
	locks := services.NewRequestLocks()
	authz := services.NewAuthorizationService(enforcer, log)
	audit := services.NewAuditService(store)
	dispatcher := services.NewDispatchService(store, authz, audit, connectors.NewRegistry(), locks, discardPublisher{}, cfg, log)
	lifecycle := services.NewChangeRequestService(
		store,
		validator,
		sqlimpact.New(sqlimpact.Options{}),
		services.NewValidationService(),
		policy.NewEngine(policy.Config{HighImpactMode: policy.HighImpactElevate}),
		authz,
		audit,
		dispatcher,
		locks,
		discardPublisher{},
		log,
	)

	actor := middlewares.NewActorMiddleware()
	limit := middlewares.NewRateLimitMiddleware(allowAll{}, cfg)

	app := fiber.New(fiber.Config{ErrorHandler: pkg.ErrorHandler})
	NewHealthHandler(cfg).RegisterRoutes(app)
	NewSQLHandler(lifecycle, actor, limit).RegisterRoutes(app)
	NewChangeRequestHandler(lifecycle, dispatcher, validator, actor, limit).RegisterRoutes(app)
	NewApprovalHandler(lifecycle, validator, actor, limit).RegisterRoutes(app)
	return app, mock
}

func do(t *testing.T, app *fiber.App, method, path, body string, actor *models.Actor) (*http.Response, models.WebResponse[json.RawMessage]) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if actor != nil {
		req.Header.Set(middlewares.HeaderActorID, actor.ID)
		req.Header.Set(middlewares.HeaderActorRole, string(actor.Role))
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	var envelope models.WebResponse[json.RawMessage]
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	}
	return resp, envelope
}

var developer = &models.Actor{ID: "dev-1", Role: models.ActorRoleDeveloper}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := do(t, app, fiber.MethodGet, "/health", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, body.Success)
	require.JSONEq(t, `"change-engine"`, string(body.Data))

	resp, _ = do(t, app, fiber.MethodGet, "/metrics", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAnalyzeSQL(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := do(t, app, fiber.MethodPost, "/sql/analyze",
		`{"statement":"UPDATE user_permissions SET can_access_reports=true WHERE department='finance'"}`, developer)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var verdict models.ImpactVerdict
	require.NoError(t, json.Unmarshal(body.Data, &verdict))
	require.True(t, verdict.IsValid)
	require.Equal(t, sqlimpact.StatementUpdate, verdict.StatementType)
	require.Contains(t, verdict.AffectedTables, "user_permissions")

	resp, body = do(t, app, fiber.MethodPost, "/sql/analyze", `{"statement":""}`, developer)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "VALIDATION_FAILED", body.Code)
	require.NotEmpty(t, body.Reasons)
}

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		actor      *models.Actor
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing actor",
			method:     fiber.MethodGet,
			path:       "/requests",
			wantStatus: fiber.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "unknown role",
			method:     fiber.MethodGet,
			path:       "/requests/stats",
			actor:      &models.Actor{ID: "x", Role: "INTERN"},
			wantStatus: fiber.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "malformed id",
			method:     fiber.MethodPost,
			path:       "/requests/not-a-uuid/submit",
			actor:      developer,
			wantStatus: fiber.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "malformed body",
			method:     fiber.MethodPost,
			path:       "/requests",
			body:       `{"title":`,
			actor:      developer,
			wantStatus: fiber.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "developer cannot dispatch",
			method:     fiber.MethodPost,
			path:       "/requests/" + uuid.NewString() + "/dispatch",
			actor:      developer,
			wantStatus: fiber.StatusConflict,
			wantCode:   "INVALID_TRANSITION",
		},
		{
			name:       "reconcile outcome must be final",
			method:     fiber.MethodPost,
			path:       "/requests/" + uuid.NewString() + "/reconcile",
			body:       `{"outcome":"UNKNOWN"}`,
			actor:      &models.Actor{ID: "mgr-1", Role: models.ActorRoleManager},
			wantStatus: fiber.StatusUnprocessableEntity,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "audit limit out of range",
			method:     fiber.MethodGet,
			path:       "/requests/" + uuid.NewString() + "/audit?limit=100000",
			actor:      developer,
			wantStatus: fiber.StatusUnprocessableEntity,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "unknown route",
			method:     fiber.MethodGet,
			path:       "/nowhere",
			wantStatus: fiber.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(t)

			resp, body := do(t, app, tt.method, tt.path, tt.body, tt.actor)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			require.False(t, body.Success)
			require.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestGetRequestNotFound(t *testing.T) {
	app, mock := newTestApp(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "change_requests" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	resp, body := do(t, app, fiber.MethodGet, "/requests/"+id.String(), "", developer)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "NOT_FOUND", body.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
