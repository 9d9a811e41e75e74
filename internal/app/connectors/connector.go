package connectors

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
)

// Target identifies the request being executed and where it runs.
type Target struct {
	RequestID   uuid.UUID          `json:"request_id"`
	Environment models.Environment `json:"environment"`
	Application string             `json:"application,omitempty"`
}

// Result is what a connector reports once the operation has finished.
type Result struct {
	Outcome models.ExecutionOutcome `json:"outcome"`
	Detail  string                  `json:"detail"`
}

// Connector executes approved changes against one environment. An error
// means the outcome is not known: the operation may or may not have run.
type Connector interface {
	ExecuteSQL(ctx context.Context, target Target, payload models.SQLFixPayload) (Result, error)
	ApplyConfig(ctx context.Context, target Target, payload models.ConfigUpdatePayload) (Result, error)
	DeployPatch(ctx context.Context, target Target, payload models.PatchDeploymentPayload) (Result, error)
	RunJob(ctx context.Context, target Target, payload models.JobExecutionPayload) (Result, error)
	RotateLogs(ctx context.Context, target Target, payload models.LogRotationPayload) (Result, error)
}

// Canceler is implemented by connectors that accept a best-effort stop
// signal for an operation already in flight.
type Canceler interface {
	Cancel(ctx context.Context, target Target) error
}

// Execute routes the request payload to the connector method for its type.
func Execute(ctx context.Context, c Connector, req *models.ChangeRequest) (Result, error) {
	target := Target{
		RequestID:   req.ID,
		Environment: req.Environment,
		Application: req.Application,
	}
	p := req.Payload
	switch {
	case req.Type == models.RequestTypeSQLFix && p.SQLFix != nil:
		return c.ExecuteSQL(ctx, target, *p.SQLFix)
	case req.Type == models.RequestTypeConfigUpdate && p.ConfigUpdate != nil:
		return c.ApplyConfig(ctx, target, *p.ConfigUpdate)
	case req.Type == models.RequestTypePatchDeployment && p.PatchDeployment != nil:
		return c.DeployPatch(ctx, target, *p.PatchDeployment)
	case req.Type == models.RequestTypeJobExecution && p.JobExecution != nil:
		return c.RunJob(ctx, target, *p.JobExecution)
	case req.Type == models.RequestTypeLogRotation && p.LogRotation != nil:
		return c.RotateLogs(ctx, target, *p.LogRotation)
	default:
		return Result{}, fmt.Errorf("no %s payload to execute", req.Type)
	}
}

// Registry maps environments to their connector.
type Registry struct {
	mu    sync.RWMutex
	byEnv map[models.Environment]Connector
}

func NewRegistry() *Registry {
	return &Registry{byEnv: make(map[models.Environment]Connector)}
}

func (r *Registry) Register(env models.Environment, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byEnv[env] = c
}

// For returns the connector for env, if one is registered.
func (r *Registry) For(env models.Environment) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byEnv[env]
	return c, ok
}
