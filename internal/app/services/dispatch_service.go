package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/connectors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
	"github.com/sirupsen/logrus"
)

// ConnectorRegistry resolves the connector serving an environment.
type ConnectorRegistry interface {
	For(env models.Environment) (connectors.Connector, bool)
}

// DispatchService hands APPROVED requests to their connector. The move to
// IN_PROGRESS commits before the connector is called, so a request is
// dispatched at most once however many callers race.
type DispatchService struct {
	tx       *transitioner
	authz    *AuthorizationService
	registry ConnectorRegistry
	timeout  time.Duration
	logger   *logrus.Entry

	mu       sync.Mutex
	inflight map[uuid.UUID]*dispatchCall
}

// dispatchCall is one connector call in flight. Entries are removed by
// pointer so a finished call never clears a newer one.
type dispatchCall struct {
	cancel context.CancelFunc
}

func NewDispatchService(
	store ChangeRequestStore,
	authz *AuthorizationService,
	audit *AuditService,
	registry ConnectorRegistry,
	locks *RequestLocks,
	publisher EventPublisher,
	cfg *infrastructures.AppConfig,
	logger *logrus.Logger,
) *DispatchService {
	entry := logger.WithField("component", "dispatcher")
	return &DispatchService{
		tx: &transitioner{
			store:     store,
			audit:     audit,
			locks:     locks,
			publisher: publisher,
			logger:    entry,
		},
		authz:    authz,
		registry: registry,
		timeout:  cfg.DispatchTimeout,
		logger:   entry,
		inflight: make(map[uuid.UUID]*dispatchCall),
	}
}

// Dispatch executes an APPROVED request and records the outcome. A connector
// that errors or exceeds the timeout leaves the request IN_PROGRESS with an
// UNKNOWN outcome until Reconcile is called. The call is registered as in
// flight in the same locked step that commits IN_PROGRESS, and stays
// registered until its result is recorded, so Reconcile and Abort always see
// it.
func (s *DispatchService) Dispatch(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ChangeRequest, error) {
	if err := s.authz.Authorize(actor, ActionDispatch); err != nil {
		s.tx.reject(ctx, actor, id, opDispatch, err)
		return nil, err
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	call := &dispatchCall{cancel: cancel}

	var conn connectors.Connector
	started, err := s.tx.apply(ctx, actor, id, opDispatch, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		if req.Status != models.RequestStatusApproved {
			return nil, errors.NewInvalidTransition(fmt.Sprintf("Only APPROVED requests can be dispatched, request is %s", req.Status))
		}
		if open := req.CurrentDecision(); open != nil {
			return nil, errors.NewInvalidTransition(fmt.Sprintf("%s decision is still %s", open.Role, open.Outcome))
		}
		if req.Type == models.RequestTypeSQLFix {
			if req.Verdict == nil || req.Verdict.StatementHash != sqlimpact.Fingerprint(req.Statement()) {
				return nil, errors.NewPolicyViolation([]string{"approved statement does not match its verdict"})
			}
		}

		c, ok := s.registry.For(req.Environment)
		if !ok {
			return nil, errors.NewConnectorUnavailable(fmt.Sprintf("No connector available for %s", req.Environment))
		}
		conn = c

		now := time.Now()
		req.Status = models.RequestStatusInProgress
		req.DispatchedAt = &now
		req.UpdatedAt = now
		s.track(id, call)
		return []models.AuditEvent{
			transitionEvent(actor, models.AuditActionDispatched, models.RequestStatusApproved, models.RequestStatusInProgress,
				fmt.Sprintf("dispatched to %s connector", req.Environment)),
		}, nil
	})
	if err != nil {
		// The commit may have failed after the call was registered.
		s.untrack(id, call)
		return nil, err
	}

	timeoutCtx, stop := context.WithTimeout(callCtx, s.timeout)
	begin := time.Now()
	result, callErr := connectors.Execute(timeoutCtx, conn, started)
	timedOut := stderrors.Is(timeoutCtx.Err(), context.DeadlineExceeded)
	stop()

	outcome := result.Outcome
	if callErr != nil {
		outcome = models.ExecutionOutcomeUnknown
	}
	recordDispatch(string(started.Type), string(outcome), time.Since(begin))

	// The result must be recorded even if the caller has gone away.
	defer s.untrack(id, call)
	return s.tx.apply(context.WithoutCancel(ctx), models.SystemActor, id, opExecuteResult, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		s.untrack(id, call)
		return s.applyResult(req, result, callErr, timedOut)
	})
}

func (s *DispatchService) applyResult(req *models.ChangeRequest, result connectors.Result, callErr error, timedOut bool) ([]models.AuditEvent, error) {
	actor := models.SystemActor
	if req.Status != models.RequestStatusInProgress {
		detail := fmt.Sprintf("connector reported %s after request became %s", describeResult(result, callErr), req.Status)
		return []models.AuditEvent{newEvent(actor, models.AuditActionExecutionResultIgnored, detail)}, nil
	}

	now := time.Now()
	req.UpdatedAt = now
	switch {
	case callErr != nil || result.Outcome == models.ExecutionOutcomeUnknown:
		detail := describeResult(result, callErr)
		if timedOut {
			detail = fmt.Sprintf("connector did not respond within %s", s.timeout)
		}
		req.ExecutionOutcome = outcomeRef(models.ExecutionOutcomeUnknown)
		req.ExecutionDetail = stringRef(detail)
		return []models.AuditEvent{newEvent(actor, models.AuditActionExecutionOutcomeUnknown, detail)}, nil
	case result.Outcome == models.ExecutionOutcomeSuccess:
		req.Status = models.RequestStatusCompleted
		req.ExecutionOutcome = outcomeRef(models.ExecutionOutcomeSuccess)
		req.ExecutionDetail = stringRef(result.Detail)
		req.CompletedAt = &now
		return []models.AuditEvent{
			transitionEvent(actor, models.AuditActionExecutionCompleted, models.RequestStatusInProgress, models.RequestStatusCompleted, result.Detail),
		}, nil
	default:
		req.Status = models.RequestStatusFailed
		req.ExecutionOutcome = outcomeRef(models.ExecutionOutcomeFailure)
		req.ExecutionDetail = stringRef(result.Detail)
		req.CompletedAt = &now
		return []models.AuditEvent{
			transitionEvent(actor, models.AuditActionExecutionFailed, models.RequestStatusInProgress, models.RequestStatusFailed, result.Detail),
		}, nil
	}
}

// Reconcile settles an IN_PROGRESS request whose outcome was not reported,
// typically after a dispatch timeout.
func (s *DispatchService) Reconcile(ctx context.Context, actor models.Actor, id uuid.UUID, dto *models.ReconcileRequest) (*models.ChangeRequest, error) {
	if err := s.authz.Authorize(actor, ActionReconcile); err != nil {
		s.tx.reject(ctx, actor, id, opReconcile, err)
		return nil, err
	}

	return s.tx.apply(ctx, actor, id, opReconcile, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		if dto == nil || (dto.Outcome != models.ExecutionOutcomeSuccess && dto.Outcome != models.ExecutionOutcomeFailure) {
			return nil, errors.NewValidationFailed([]string{"outcome must be SUCCESS or FAILURE"})
		}
		if req.Status != models.RequestStatusInProgress {
			return nil, errors.NewInvalidTransition(fmt.Sprintf("Only IN_PROGRESS requests can be reconciled, request is %s", req.Status))
		}
		if s.isInflight(req.ID) {
			return nil, errors.NewInvalidTransition("Dispatch is still waiting for the connector")
		}

		now := time.Now()
		to := models.RequestStatusCompleted
		if dto.Outcome == models.ExecutionOutcomeFailure {
			to = models.RequestStatusFailed
		}
		req.Status = to
		req.ExecutionOutcome = outcomeRef(dto.Outcome)
		req.ExecutionDetail = stringRef(dto.Detail)
		req.CompletedAt = &now
		req.UpdatedAt = now

		detail := fmt.Sprintf("reconciled as %s", dto.Outcome)
		if dto.Detail != "" {
			detail += ": " + dto.Detail
		}
		return []models.AuditEvent{
			transitionEvent(actor, models.AuditActionReconciled, models.RequestStatusInProgress, to, detail),
		}, nil
	})
}

// Abort signals a cancelled request's in-flight execution to stop. Both the
// local call and the connector hook are best effort.
func (s *DispatchService) Abort(ctx context.Context, req *models.ChangeRequest) {
	s.mu.Lock()
	call, ok := s.inflight[req.ID]
	s.mu.Unlock()
	if ok {
		call.cancel()
	}

	conn, found := s.registry.For(req.Environment)
	if !found {
		return
	}
	canceler, ok := conn.(connectors.Canceler)
	if !ok {
		return
	}
	target := connectors.Target{RequestID: req.ID, Environment: req.Environment, Application: req.Application}
	if err := canceler.Cancel(ctx, target); err != nil {
		s.logger.WithField("request_id", req.ID).WithError(err).Warn("connector did not accept cancellation")
	}
}

func (s *DispatchService) track(id uuid.UUID, call *dispatchCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[id] = call
}

func (s *DispatchService) untrack(id uuid.UUID, call *dispatchCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] == call {
		delete(s.inflight, id)
	}
}

func (s *DispatchService) isInflight(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}

func describeResult(result connectors.Result, err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	if result.Detail == "" {
		return string(result.Outcome)
	}
	return fmt.Sprintf("%s: %s", result.Outcome, result.Detail)
}

func outcomeRef(o models.ExecutionOutcome) *models.ExecutionOutcome {
	return &o
}
