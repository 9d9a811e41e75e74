package services

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/connectors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/repositories"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/policy"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	dev1  = models.Actor{ID: "dev-1", Role: models.ActorRoleDeveloper, SourceAddress: "10.0.0.7", UserAgent: "console"}
	dev2  = models.Actor{ID: "dev-2", Role: models.ActorRoleDeveloper}
	dev3  = models.Actor{ID: "dev-3", Role: models.ActorRoleSeniorDeveloper}
	mgr   = models.Actor{ID: "mgr-1", Role: models.ActorRoleManager}
	admin = models.Actor{ID: "admin-1", Role: models.ActorRoleAdmin}
)

const scenarioAStatement = "UPDATE user_permissions SET can_access_reports=true WHERE department='finance'"

// memoryStore mirrors the repository's transactional contract in memory:
// Mutate works on a copy and discards it when fn fails.
type memoryStore struct {
	mu         sync.Mutex
	requests   map[uuid.UUID]*models.ChangeRequest
	events     map[uuid.UUID][]models.AuditEvent
	mutateErr  error
	appendErrs int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		requests: make(map[uuid.UUID]*models.ChangeRequest),
		events:   make(map[uuid.UUID][]models.AuditEvent),
	}
}

func cloneRequest(r *models.ChangeRequest) *models.ChangeRequest {
	c := *r
	c.Decisions = append([]models.ApprovalDecision(nil), r.Decisions...)
	return &c
}

func (m *memoryStore) Create(ctx context.Context, req *models.ChangeRequest, events []models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.StampEvents(events)
	m.requests[req.ID] = cloneRequest(req)
	m.events[req.ID] = append(m.events[req.ID], events...)
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, errors.NewNotFoundError("Change request not found")
	}
	return cloneRequest(req), nil
}

func (m *memoryStore) Mutate(ctx context.Context, id uuid.UUID, fn repositories.MutateFunc) (*models.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, errors.NewStorageFailure(err, "Failed to lock change request")
	}
	stored, ok := m.requests[id]
	if !ok {
		return nil, errors.NewNotFoundError("Change request not found")
	}
	if m.mutateErr != nil {
		return nil, errors.NewStorageFailure(m.mutateErr, "Failed to update change request")
	}

	req := cloneRequest(stored)
	events, err := fn(req)
	if err != nil {
		return nil, err
	}
	req.Version++
	req.StampEvents(events)
	m.requests[id] = cloneRequest(req)
	m.events[id] = append(m.events[id], events...)
	return req, nil
}

func (m *memoryStore) AppendEvents(ctx context.Context, id uuid.UUID, events []models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErrs > 0 {
		m.appendErrs--
		return errors.NewStorageFailure(context.DeadlineExceeded, "Failed to append audit events")
	}
	req, ok := m.requests[id]
	if !ok {
		return errors.NewNotFoundError("Change request not found")
	}
	req.StampEvents(events)
	m.events[id] = append(m.events[id], events...)
	return nil
}

func (m *memoryStore) List(ctx context.Context, filter models.ChangeRequestFilter) (*models.Pagination[[]models.ChangeRequest], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []models.ChangeRequest
	for _, r := range m.sorted() {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && r.Type != *filter.Type {
			continue
		}
		if filter.SubmitterID != nil && r.SubmitterID != *filter.SubmitterID {
			continue
		}
		items = append(items, *cloneRequest(r))
	}
	return page(items), nil
}

func (m *memoryStore) Pending(ctx context.Context, q repositories.PendingQuery) (*models.Pagination[[]models.ChangeRequest], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []models.ChangeRequest
	for _, r := range m.sorted() {
		if r.Status != models.RequestStatusPendingApproval || r.PendingRole == nil || r.SubmitterID == q.ActorID {
			continue
		}
		match := false
		for _, role := range q.Roles {
			match = match || role == *r.PendingRole
		}
		if !match {
			continue
		}
		slot := r.Decisions[r.CurrentStep]
		if !q.AnyAssignee && slot.AssigneeID != nil && *slot.AssigneeID != q.ActorID {
			continue
		}
		items = append(items, *cloneRequest(r))
	}
	return page(items), nil
}

func (m *memoryStore) Events(ctx context.Context, id uuid.UUID, after int64, limit int) ([]models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEvent
	for _, e := range m.events[id] {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) Stats(ctx context.Context) (*models.RequestStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.RequestStats{
		ByStatus: map[models.RequestStatus]int64{},
		ByType:   map[models.RequestType]int64{},
	}
	for _, r := range m.requests {
		stats.Total++
		stats.ByStatus[r.Status]++
		stats.ByType[r.Type]++
	}
	return stats, nil
}

func (m *memoryStore) sorted() []*models.ChangeRequest {
	out := make([]*models.ChangeRequest, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// put overwrites a stored request, for tests that start from a given state.
func (m *memoryStore) put(req *models.ChangeRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = cloneRequest(req)
}

func (m *memoryStore) actions(id uuid.UUID) []models.AuditAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditAction, 0, len(m.events[id]))
	for _, e := range m.events[id] {
		out = append(out, e.Action)
	}
	return out
}

func page(items []models.ChangeRequest) *models.Pagination[[]models.ChangeRequest] {
	return &models.Pagination[[]models.ChangeRequest]{
		Page:       1,
		Limit:      10,
		TotalPages: 1,
		TotalItems: len(items),
		Items:      items,
	}
}

// fakeConnector answers every operation with the same result. When block is
// set, calls wait until it is closed or their context ends.
type fakeConnector struct {
	result    connectors.Result
	err       error
	block     chan struct{}
	started   chan struct{}
	calls     atomic.Int32
	cancelled atomic.Int32
}

func (f *fakeConnector) run(ctx context.Context) (connectors.Result, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return connectors.Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeConnector) ExecuteSQL(ctx context.Context, _ connectors.Target, _ models.SQLFixPayload) (connectors.Result, error) {
	return f.run(ctx)
}

func (f *fakeConnector) ApplyConfig(ctx context.Context, _ connectors.Target, _ models.ConfigUpdatePayload) (connectors.Result, error) {
	return f.run(ctx)
}

func (f *fakeConnector) DeployPatch(ctx context.Context, _ connectors.Target, _ models.PatchDeploymentPayload) (connectors.Result, error) {
	return f.run(ctx)
}

func (f *fakeConnector) RunJob(ctx context.Context, _ connectors.Target, _ models.JobExecutionPayload) (connectors.Result, error) {
	return f.run(ctx)
}

func (f *fakeConnector) RotateLogs(ctx context.Context, _ connectors.Target, _ models.LogRotationPayload) (connectors.Result, error) {
	return f.run(ctx)
}

func (f *fakeConnector) Cancel(ctx context.Context, _ connectors.Target) error {
	f.cancelled.Add(1)
	return nil
}

// recordingPublisher keeps every published action. onPublish, when set, runs
// after recording, while the publishing transition still holds the request
// lock.
type recordingPublisher struct {
	mu        sync.Mutex
	actions   []models.AuditAction
	onPublish func(req *models.ChangeRequest, events []models.AuditEvent)
}

func (p *recordingPublisher) Publish(ctx context.Context, req *models.ChangeRequest, events []models.AuditEvent) error {
	p.mu.Lock()
	for _, e := range events {
		p.actions = append(p.actions, e.Action)
	}
	hook := p.onPublish
	p.mu.Unlock()

	if hook != nil {
		hook(req, events)
	}
	return nil
}

// onAction runs fn in its own goroutine the first time action is published.
// fn cannot run inline because the request lock is held while publishing.
func (p *recordingPublisher) onAction(action models.AuditAction, fn func()) {
	var once sync.Once
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPublish = func(_ *models.ChangeRequest, events []models.AuditEvent) {
		for _, e := range events {
			if e.Action == action {
				once.Do(func() { go fn() })
			}
		}
	}
}

type testEnv struct {
	store      *memoryStore
	connector  *fakeConnector
	registry   *connectors.Registry
	publisher  *recordingPublisher
	lifecycle  *ChangeRequestService
	dispatcher *DispatchService
	audit      *AuditService
}

type envOption func(cfg *infrastructures.AppConfig)

func withHighImpactMode(mode string) envOption {
	return func(cfg *infrastructures.AppConfig) { cfg.HighImpactMode = mode }
}

func withDispatchTimeout(d time.Duration) envOption {
	return func(cfg *infrastructures.AppConfig) { cfg.DispatchTimeout = d }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := &infrastructures.AppConfig{
		HighImpactMode:  "elevate",
		DispatchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	enforcer, err := infrastructures.NewEnforcer()
	require.NoError(t, err)

	store := newMemoryStore()
	conn := &fakeConnector{result: connectors.Result{Outcome: models.ExecutionOutcomeSuccess, Detail: "done"}}
	registry := connectors.NewRegistry()
	for _, env := range []models.Environment{models.EnvironmentDev, models.EnvironmentStaging, models.EnvironmentProduction} {
		registry.Register(env, conn)
	}
	publisher := &recordingPublisher{}
	locks := NewRequestLocks()
	authz := NewAuthorizationService(enforcer, logger)
	audit := NewAuditService(store)
	dispatcher := NewDispatchService(store, authz, audit, registry, locks, publisher, cfg, logger)
	lifecycle := NewChangeRequestService(
		store,
		infrastructures.NewValidator(),
		sqlimpact.New(sqlimpact.Options{}),
		NewValidationService(),
		policy.NewEngine(policy.Config{HighImpactMode: policy.HighImpactMode(cfg.HighImpactMode)}),
		authz,
		audit,
		dispatcher,
		locks,
		publisher,
		logger,
	)

	return &testEnv{
		store:      store,
		connector:  conn,
		registry:   registry,
		publisher:  publisher,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		audit:      audit,
	}
}

func sqlFixRequest(env models.Environment, priority models.Priority, statement string) *models.ChangeRequestCreateRequest {
	return &models.ChangeRequestCreateRequest{
		Title:                 "Grant finance access to reports",
		Type:                  models.RequestTypeSQLFix,
		Priority:              priority,
		Environment:           env,
		Application:           "reporting",
		BusinessJustification: "Quarter close",
		RollbackPlan:          "Revert the flag",
		Payload:               models.Payload{SQLFix: &models.SQLFixPayload{Statement: statement}},
	}
}

func configRequest(env models.Environment, priority models.Priority) *models.ChangeRequestCreateRequest {
	return &models.ChangeRequestCreateRequest{
		Title:        "Raise pool size",
		Type:         models.RequestTypeConfigUpdate,
		Priority:     priority,
		Environment:  env,
		RollbackPlan: "Restore previous value",
		Payload: models.Payload{ConfigUpdate: &models.ConfigUpdatePayload{
			Target: "billing-api",
			Diff:   "-pool=10\n+pool=20",
		}},
	}
}

// createValidated creates a SQL_FIX as dev1 and attaches its verdict.
func (e *testEnv) createValidated(t *testing.T, env models.Environment, priority models.Priority, statement string) *models.ChangeRequest {
	t.Helper()
	ctx := context.Background()
	req, err := e.lifecycle.Create(ctx, dev1, sqlFixRequest(env, priority, statement))
	require.NoError(t, err)
	req, err = e.lifecycle.AttachVerdict(ctx, dev1, req.ID)
	require.NoError(t, err)
	return req
}

// approved returns a submitted DEV SQL_FIX approved by its peer reviewer.
func (e *testEnv) approved(t *testing.T) *models.ChangeRequest {
	t.Helper()
	ctx := context.Background()
	req := e.createValidated(t, models.EnvironmentDev, models.PriorityLow, "DELETE FROM sessions WHERE id = 42")
	_, err := e.lifecycle.Submit(ctx, dev1, req.ID)
	require.NoError(t, err)
	req, err = e.lifecycle.Decide(ctx, dev2, req.ID, &models.DecisionRequest{Role: models.ApprovalRolePeerReviewer, Outcome: models.DecisionOutcomeApproved})
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusApproved, req.Status)
	return req
}

func requireCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, errors.CodeOf(err), err.Error())
}
