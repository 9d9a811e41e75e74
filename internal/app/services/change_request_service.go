package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/repositories"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/policy"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
	"github.com/sirupsen/logrus"
)

// Operation names used in audit details, logs and metrics.
const (
	opCreate        = "create"
	opUpdate        = "update"
	opValidateSQL   = "validate_sql"
	opSubmit        = "submit"
	opResubmit      = "resubmit"
	opDecide        = "decide"
	opCancel        = "cancel"
	opDispatch      = "dispatch"
	opExecuteResult = "execution_result"
	opReconcile     = "reconcile"
)

// ChangeRequestService owns the request lifecycle. Every mutation runs under
// the request's lock and commits together with its audit events.
type ChangeRequestService struct {
	tx         *transitioner
	store      ChangeRequestStore
	validator  *infrastructures.Validator
	analyzer   *sqlimpact.Analyzer
	gate       *ValidationService
	policy     policy.Engine
	authz      *AuthorizationService
	audit      *AuditService
	dispatcher *DispatchService
	logger     *logrus.Entry
}

func NewChangeRequestService(
	store ChangeRequestStore,
	validator *infrastructures.Validator,
	analyzer *sqlimpact.Analyzer,
	gate *ValidationService,
	engine policy.Engine,
	authz *AuthorizationService,
	audit *AuditService,
	dispatcher *DispatchService,
	locks *RequestLocks,
	publisher EventPublisher,
	logger *logrus.Logger,
) *ChangeRequestService {
	entry := logger.WithField("component", "lifecycle")
	return &ChangeRequestService{
		tx: &transitioner{
			store:     store,
			audit:     audit,
			locks:     locks,
			publisher: publisher,
			logger:    entry,
		},
		store:      store,
		validator:  validator,
		analyzer:   analyzer,
		gate:       gate,
		policy:     engine,
		authz:      authz,
		audit:      audit,
		dispatcher: dispatcher,
		logger:     entry,
	}
}

// Create stores a new DRAFT owned by the actor.
func (s *ChangeRequestService) Create(ctx context.Context, actor models.Actor, dto *models.ChangeRequestCreateRequest) (*models.ChangeRequest, error) {
	if err := s.authz.Authorize(actor, ActionCreate); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(dto); err != nil {
		return nil, err
	}

	var reasons []string
	if !dto.Payload.Matches(dto.Type) {
		reasons = append(reasons, fmt.Sprintf("payload must contain exactly the %s variant", payloadKey(dto.Type)))
	}
	if dto.PeerReviewerID != nil && *dto.PeerReviewerID == actor.ID {
		reasons = append(reasons, "peer reviewer cannot be the submitter")
	}
	if len(reasons) > 0 {
		return nil, errors.NewValidationFailed(reasons)
	}

	now := time.Now()
	req := &models.ChangeRequest{
		ID:                    uuid.New(),
		Title:                 strings.TrimSpace(dto.Title),
		Description:           dto.Description,
		Type:                  dto.Type,
		Priority:              dto.Priority,
		Environment:           dto.Environment,
		Application:           dto.Application,
		SubmitterID:           actor.ID,
		PeerReviewerID:        blankToNil(dto.PeerReviewerID),
		BusinessJustification: dto.BusinessJustification,
		RollbackPlan:          dto.RollbackPlan,
		Payload:               dto.Payload,
		Status:                models.RequestStatusDraft,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	created := newEvent(actor, models.AuditActionCreated, fmt.Sprintf("%s request created for %s", req.Type, req.Environment))
	created.ToStatus = statusRef(models.RequestStatusDraft)
	events := []models.AuditEvent{created}

	if err := s.store.Create(ctx, req, events); err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues(opCreate, string(req.Status)).Inc()
	s.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"actor":      actor.ID,
		"type":       req.Type,
	}).Info("request created")
	s.tx.publish(ctx, req, events)
	return req, nil
}

// UpdateDraft edits a DRAFT, or the payload and supporting text of a request
// returned for more information. A changed SQL statement drops its verdict.
func (s *ChangeRequestService) UpdateDraft(ctx context.Context, actor models.Actor, id uuid.UUID, dto *models.ChangeRequestUpdateRequest) (*models.ChangeRequest, error) {
	if err := s.validator.Validate(dto); err != nil {
		return nil, err
	}

	return s.tx.apply(ctx, actor, id, opUpdate, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		if req.Status != models.RequestStatusDraft && req.Status != models.RequestStatusNeedsInfo {
			return nil, errors.NewInvalidTransition(fmt.Sprintf("Request in %s cannot be edited", req.Status))
		}
		if err := s.authz.AuthorizeOwner(actor, req, ActionUpdate); err != nil {
			return nil, err
		}

		if req.Status == models.RequestStatusNeedsInfo {
			var locked []string
			if dto.Title != nil {
				locked = append(locked, "title")
			}
			if dto.Priority != nil {
				locked = append(locked, "priority")
			}
			if dto.Environment != nil {
				locked = append(locked, "environment")
			}
			if dto.Application != nil {
				locked = append(locked, "application")
			}
			if dto.PeerReviewerID != nil {
				locked = append(locked, "peer_reviewer_id")
			}
			if len(locked) > 0 {
				reasons := make([]string, 0, len(locked))
				for _, f := range locked {
					reasons = append(reasons, f+" cannot change after submission")
				}
				return nil, errors.NewValidationFailed(reasons)
			}
		}

		var changed []string
		if dto.Title != nil {
			req.Title = strings.TrimSpace(*dto.Title)
			changed = append(changed, "title")
		}
		if dto.Description != nil {
			req.Description = *dto.Description
			changed = append(changed, "description")
		}
		if dto.Priority != nil {
			req.Priority = *dto.Priority
			changed = append(changed, "priority")
		}
		if dto.Environment != nil {
			req.Environment = *dto.Environment
			changed = append(changed, "environment")
		}
		if dto.Application != nil {
			req.Application = *dto.Application
			changed = append(changed, "application")
		}
		if dto.PeerReviewerID != nil {
			if *dto.PeerReviewerID == req.SubmitterID {
				return nil, errors.NewValidationFailed([]string{"peer reviewer cannot be the submitter"})
			}
			req.PeerReviewerID = blankToNil(dto.PeerReviewerID)
			changed = append(changed, "peer_reviewer_id")
		}
		if dto.BusinessJustification != nil {
			req.BusinessJustification = *dto.BusinessJustification
			changed = append(changed, "business_justification")
		}
		if dto.RollbackPlan != nil {
			req.RollbackPlan = *dto.RollbackPlan
			changed = append(changed, "rollback_plan")
		}
		if dto.Payload != nil {
			if !dto.Payload.Matches(req.Type) {
				return nil, errors.NewValidationFailed([]string{
					fmt.Sprintf("payload must contain exactly the %s variant", payloadKey(req.Type)),
				})
			}
			before := req.Statement()
			req.Payload = *dto.Payload
			changed = append(changed, "payload")
			if req.Verdict != nil && sqlimpact.Fingerprint(before) != sqlimpact.Fingerprint(req.Statement()) {
				req.Verdict = nil
				req.VerdictAttachedAt = nil
				changed = append(changed, "verdict cleared")
			}
		}
		if len(changed) == 0 {
			return nil, errors.NewBadRequestError("Nothing to update")
		}

		req.UpdatedAt = time.Now()
		return []models.AuditEvent{
			newEvent(actor, models.AuditActionUpdated, "updated "+strings.Join(changed, ", ")),
		}, nil
	})
}

// ValidateSQL analyzes a statement without touching any request.
func (s *ChangeRequestService) ValidateSQL(ctx context.Context, actor models.Actor, dto *models.AnalyzeSQLRequest) (*models.ImpactVerdict, error) {
	if err := s.authz.Authorize(actor, ActionValidate); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(dto); err != nil {
		return nil, err
	}
	return s.analyze(dto.Statement)
}

// AttachVerdict analyzes the request's current statement and attaches the
// verdict, superseding any earlier one.
func (s *ChangeRequestService) AttachVerdict(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ChangeRequest, error) {
	return s.tx.apply(ctx, actor, id, opValidateSQL, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		if req.Status != models.RequestStatusDraft && req.Status != models.RequestStatusNeedsInfo {
			return nil, errors.NewInvalidTransition(fmt.Sprintf("Request in %s cannot be revalidated", req.Status))
		}
		if err := s.authz.AuthorizeOwner(actor, req, ActionValidate); err != nil {
			return nil, err
		}
		if req.Type != models.RequestTypeSQLFix {
			return nil, errors.NewValidationFailed([]string{"only SQL_FIX requests carry an impact verdict"})
		}

		verdict, err := s.analyze(req.Statement())
		if err != nil {
			return nil, err
		}
		now := time.Now()
		req.Verdict = verdict
		req.VerdictAttachedAt = &now
		req.UpdatedAt = now

		detail := fmt.Sprintf("valid=%t impact=%s type=%s rows=%d tables=%s",
			verdict.IsValid, verdict.ImpactLevel, verdict.StatementType,
			verdict.EstimatedAffectedRows, strings.Join(verdict.AffectedTables, ","))
		return []models.AuditEvent{newEvent(actor, models.AuditActionSQLValidated, detail)}, nil
	})
}

// Submit runs the validation gate, freezes the approval chain and moves the
// request to PENDING_APPROVAL, or straight to APPROVED when no approver is
// required. PENDING_VALIDATION only exists inside this call.
func (s *ChangeRequestService) Submit(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ChangeRequest, error) {
	return s.tx.apply(ctx, actor, id, opSubmit, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		if req.Status != models.RequestStatusDraft {
			return nil, errors.NewInvalidTransition(fmt.Sprintf("Only DRAFT requests can be submitted, request is %s", req.Status))
		}
		if err := s.authz.AuthorizeOwner(actor, req, ActionSubmit); err != nil {
			return nil, err
		}

		req.Status = models.RequestStatusPendingValidation
		if err := s.gate.Check(req).Err(); err != nil {
			return nil, err
		}

		decision := s.policy.Evaluate(s.policyInput(req))
		if decision.Blocked {
			return nil, errors.NewPolicyViolation(decision.Reasons)
		}

		now := time.Now()
		req.PolicyVersion = decision.Version
		req.SubmittedAt = &now
		req.UpdatedAt = now
		req.Cycle = 0
		req.Decisions = make([]models.ApprovalDecision, 0, len(decision.Chain))
		for i, role := range decision.Chain {
			slot := models.ApprovalDecision{
				ID:        uuid.New(),
				RequestID: req.ID,
				Position:  i,
				Role:      role,
				Outcome:   models.DecisionOutcomePending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if role == models.ApprovalRolePeerReviewer && req.PeerReviewerID != nil {
				slot.AssigneeID = stringRef(*req.PeerReviewerID)
			}
			req.Decisions = append(req.Decisions, slot)
		}

		if len(req.Decisions) == 0 {
			req.Status = models.RequestStatusApproved
			req.CurrentStep = 0
			req.PendingRole = nil
			return []models.AuditEvent{
				transitionEvent(actor, models.AuditActionSubmitted, models.RequestStatusDraft, models.RequestStatusApproved,
					fmt.Sprintf("no approval required under %s; auto-approved", decision.Version)),
			}, nil
		}

		req.Status = models.RequestStatusPendingApproval
		req.CurrentStep = 0
		req.PendingRole = roleRef(req.Decisions[0].Role)
		return []models.AuditEvent{
			transitionEvent(actor, models.AuditActionSubmitted, models.RequestStatusDraft, models.RequestStatusPendingApproval,
				fmt.Sprintf("approval chain %s under %s", joinRoles(decision.Chain), decision.Version)),
		}, nil
	})
}

// Resubmit answers an information request. Approved slots keep their
// decisions; the rest return to PENDING for a new cycle.
func (s *ChangeRequestService) Resubmit(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ChangeRequest, error) {
	return s.tx.apply(ctx, actor, id, opResubmit, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		if req.Status != models.RequestStatusNeedsInfo {
			return nil, errors.NewInvalidTransition(fmt.Sprintf("Only NEEDS_INFO requests can be resubmitted, request is %s", req.Status))
		}
		if err := s.authz.AuthorizeOwner(actor, req, ActionResubmit); err != nil {
			return nil, err
		}
		if err := s.gate.Check(req).Err(); err != nil {
			return nil, err
		}
		if reasons := s.policy.CheckResubmission(req.Chain(), s.policyInput(req)); len(reasons) > 0 {
			return nil, errors.NewPolicyViolation(reasons)
		}

		now := time.Now()
		req.Cycle++
		for i := range req.Decisions {
			d := &req.Decisions[i]
			if d.Outcome == models.DecisionOutcomeApproved {
				continue
			}
			d.Outcome = models.DecisionOutcomePending
			d.ReviewerID = nil
			d.Comment = nil
			d.DecidedAt = nil
			d.Cycle = req.Cycle
			d.UpdatedAt = now
		}

		next := req.CurrentDecision()
		if next == nil {
			return nil, errors.NewInvalidTransition("Approval chain has no open decision to resubmit to")
		}
		req.Status = models.RequestStatusPendingApproval
		req.CurrentStep = next.Position
		req.PendingRole = roleRef(next.Role)
		req.UpdatedAt = now

		return []models.AuditEvent{
			transitionEvent(actor, models.AuditActionResubmitted, models.RequestStatusNeedsInfo, models.RequestStatusPendingApproval,
				fmt.Sprintf("cycle %d, awaiting %s", req.Cycle, next.Role)),
		}, nil
	})
}

// Decide records the decision for the current slot of the approval chain.
// Slots are decided strictly in order.
func (s *ChangeRequestService) Decide(ctx context.Context, actor models.Actor, id uuid.UUID, dto *models.DecisionRequest) (*models.ChangeRequest, error) {
	if err := s.validator.Validate(dto); err != nil {
		return nil, err
	}

	return s.tx.apply(ctx, actor, id, opDecide, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		if req.Status != models.RequestStatusPendingApproval {
			return nil, errors.NewInvalidTransition(fmt.Sprintf("Request is not awaiting approval, it is %s", req.Status))
		}
		slot := req.CurrentDecision()
		if slot == nil {
			return nil, errors.NewInvalidTransition("Approval chain is already complete")
		}
		if dto.Role != slot.Role {
			return nil, outOfOrder(req, dto.Role, slot)
		}
		if err := s.authz.AuthorizeDecision(actor, req, slot); err != nil {
			return nil, err
		}

		now := time.Now()
		slot.ReviewerID = stringRef(actor.ID)
		slot.Outcome = dto.Outcome
		slot.DecidedAt = &now
		slot.Cycle = req.Cycle
		slot.UpdatedAt = now
		if dto.Comment != "" {
			slot.Comment = stringRef(dto.Comment)
		}
		req.UpdatedAt = now

		detail := fmt.Sprintf("%s %s", slot.Role, strings.ToLower(string(dto.Outcome)))
		if dto.Comment != "" {
			detail += ": " + dto.Comment
		}

		switch dto.Outcome {
		case models.DecisionOutcomeApproved:
			if next := req.CurrentDecision(); next != nil {
				req.CurrentStep = next.Position
				req.PendingRole = roleRef(next.Role)
				return []models.AuditEvent{
					newEvent(actor, models.AuditActionDecisionApproved, detail+fmt.Sprintf("; awaiting %s", next.Role)),
				}, nil
			}
			req.Status = models.RequestStatusApproved
			req.CurrentStep = len(req.Decisions)
			req.PendingRole = nil
			return []models.AuditEvent{
				transitionEvent(actor, models.AuditActionApproved, models.RequestStatusPendingApproval, models.RequestStatusApproved, detail),
			}, nil
		case models.DecisionOutcomeRejected:
			req.Status = models.RequestStatusRejected
			req.PendingRole = nil
			req.CompletedAt = &now
			return []models.AuditEvent{
				transitionEvent(actor, models.AuditActionRejected, models.RequestStatusPendingApproval, models.RequestStatusRejected, detail),
			}, nil
		case models.DecisionOutcomeInfoRequested:
			req.Status = models.RequestStatusNeedsInfo
			req.PendingRole = nil
			return []models.AuditEvent{
				transitionEvent(actor, models.AuditActionInfoRequested, models.RequestStatusPendingApproval, models.RequestStatusNeedsInfo, detail),
			}, nil
		default:
			return nil, errors.NewValidationFailed([]string{fmt.Sprintf("unsupported outcome %s", dto.Outcome)})
		}
	})
}

// Cancel moves any non-terminal request to CANCELLED. For a request in
// IN_PROGRESS the connector is asked to stop, without any guarantee.
func (s *ChangeRequestService) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, dto *models.CancelRequest) (*models.ChangeRequest, error) {
	if dto == nil {
		dto = &models.CancelRequest{}
	}
	if err := s.validator.Validate(dto); err != nil {
		return nil, err
	}

	var from models.RequestStatus
	req, err := s.tx.apply(ctx, actor, id, opCancel, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		if req.Status.IsTerminal() {
			return nil, errors.NewInvalidTransition(fmt.Sprintf("Request is already %s", req.Status))
		}
		if err := s.authz.AuthorizeOwner(actor, req, ActionCancel); err != nil {
			return nil, err
		}

		now := time.Now()
		from = req.Status
		req.Status = models.RequestStatusCancelled
		req.PendingRole = nil
		req.CompletedAt = &now
		req.UpdatedAt = now

		detail := "cancelled"
		if dto.Reason != "" {
			detail += ": " + dto.Reason
		}
		return []models.AuditEvent{
			transitionEvent(actor, models.AuditActionCancelled, from, models.RequestStatusCancelled, detail),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if from == models.RequestStatusInProgress && s.dispatcher != nil {
		s.dispatcher.Abort(ctx, req)
	}
	return req, nil
}

// Get returns a request with its approval chain and full timeline.
func (s *ChangeRequestService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.ChangeRequestDetail, error) {
	if err := s.authz.Authorize(actor, ActionRead); err != nil {
		return nil, err
	}
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	timeline, err := s.audit.Timeline(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ChangeRequestDetail{Request: req, Timeline: timeline}, nil
}

func (s *ChangeRequestService) List(ctx context.Context, actor models.Actor, filter *models.ChangeRequestFilter) (*models.Pagination[[]models.ChangeRequest], error) {
	if err := s.authz.Authorize(actor, ActionRead); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(filter); err != nil {
		return nil, err
	}
	return s.store.List(ctx, *filter)
}

// PendingApprovals lists requests whose current slot the actor may decide.
func (s *ChangeRequestService) PendingApprovals(ctx context.Context, actor models.Actor, page, limit int) (*models.Pagination[[]models.ChangeRequest], error) {
	if err := s.authz.Authorize(actor, ActionRead); err != nil {
		return nil, err
	}
	roles, err := s.authz.DecidableRoles(actor)
	if err != nil {
		return nil, err
	}
	return s.store.Pending(ctx, repositories.PendingQuery{
		Roles:       roles,
		ActorID:     actor.ID,
		AnyAssignee: actor.Role == models.ActorRoleAdmin,
		Page:        page,
		Limit:       limit,
	})
}

func (s *ChangeRequestService) Stats(ctx context.Context, actor models.Actor) (*models.RequestStats, error) {
	if err := s.authz.Authorize(actor, ActionRead); err != nil {
		return nil, err
	}
	return s.store.Stats(ctx)
}

// AuditPage returns one page of a request's timeline.
func (s *ChangeRequestService) AuditPage(ctx context.Context, actor models.Actor, id uuid.UUID, after int64, limit int) (*models.AuditPage, error) {
	if err := s.authz.Authorize(actor, ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.Page(ctx, id, after, limit)
}

func (s *ChangeRequestService) analyze(statement string) (*models.ImpactVerdict, error) {
	verdict, err := s.analyzer.Analyze(statement)
	if err != nil {
		if stderrors.Is(err, sqlimpact.ErrEmptyStatement) {
			return nil, errors.NewValidationFailed([]string{"SQL statement is required"})
		}
		return nil, errors.NewInternalServerError(err, "Failed to analyze SQL statement")
	}
	recordVerdict(string(verdict.ImpactLevel), verdict.IsValid)
	return &verdict, nil
}

func (s *ChangeRequestService) policyInput(req *models.ChangeRequest) policy.Input {
	in := policy.Input{
		Type:        req.Type,
		Priority:    req.Priority,
		Environment: req.Environment,
	}
	if req.Verdict != nil {
		in.Impact = req.Verdict.ImpactLevel
	}
	return in
}

func outOfOrder(req *models.ChangeRequest, role models.ApprovalRole, current *models.ApprovalDecision) error {
	for _, d := range req.Decisions {
		if d.Role != role {
			continue
		}
		if d.Outcome == models.DecisionOutcomeApproved {
			return errors.NewInvalidTransition(fmt.Sprintf("%s has already approved this request", role))
		}
		return errors.NewInvalidTransition(fmt.Sprintf("%s cannot decide before %s", role, current.Role))
	}
	return errors.NewInvalidTransition(fmt.Sprintf("%s is not part of this request's approval chain", role))
}

func joinRoles(roles []models.ApprovalRole) string {
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, string(r))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
