package services

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/sirupsen/logrus"
)

// Actions checked against the "request" object.
const (
	ActionRead      = "read"
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionValidate  = "validate"
	ActionSubmit    = "submit"
	ActionResubmit  = "resubmit"
	ActionCancel    = "cancel"
	ActionDispatch  = "dispatch"
	ActionReconcile = "reconcile"

	actionDecide  = "decide"
	requestObject = "request"
)

var knownActorRoles = map[models.ActorRole]bool{
	models.ActorRoleDeveloper:       true,
	models.ActorRoleSeniorDeveloper: true,
	models.ActorRoleManager:         true,
	models.ActorRoleAdmin:           true,
}

// AuthorizationService decides whether an authenticated actor may perform an
// operation. Role permissions come from the casbin enforcer; ownership and
// assignment rules need the request and are checked here.
type AuthorizationService struct {
	enforcer *casbin.Enforcer
	logger   *logrus.Entry
	mu       sync.RWMutex
}

func NewAuthorizationService(enforcer *casbin.Enforcer, logger *logrus.Logger) *AuthorizationService {
	return &AuthorizationService{
		enforcer: enforcer,
		logger:   logger.WithField("component", "authz"),
	}
}

// RequireActor rejects calls without a usable identity.
func (s *AuthorizationService) RequireActor(actor models.Actor) error {
	if actor.ID == "" {
		return errors.NewUnauthorizedError("Actor identity is required")
	}
	if !knownActorRoles[actor.Role] {
		return errors.NewUnauthorizedError(fmt.Sprintf("Unknown actor role %q", actor.Role))
	}
	return nil
}

// Check evaluates a role permission without producing an error.
func (s *AuthorizationService) Check(role models.ActorRole, object, action string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed, err := s.enforcer.Enforce(string(role), object, action)
	if err != nil {
		return false, fmt.Errorf("authz: enforce failed: %w", err)
	}
	return allowed, nil
}

// Authorize requires the actor's role to hold action on requests.
func (s *AuthorizationService) Authorize(actor models.Actor, action string) error {
	return s.authorize(actor, requestObject, action)
}

// AuthorizeOwner additionally requires the actor to be the submitter. ADMIN
// may cancel any request; every other owner action is the submitter's alone.
func (s *AuthorizationService) AuthorizeOwner(actor models.Actor, req *models.ChangeRequest, action string) error {
	if err := s.Authorize(actor, action); err != nil {
		return err
	}
	if actor.ID == req.SubmitterID {
		return nil
	}
	if action == ActionCancel && actor.Role == models.ActorRoleAdmin {
		return nil
	}
	s.deny(actor, requestObject, action, "not the submitter")
	return errors.NewInvalidTransition(fmt.Sprintf("Only the submitter may %s this request", action))
}

// AuthorizeDecision checks that actor may record the decision for slot. An
// actor approves at most one step of a request, even when their role could
// decide several.
func (s *AuthorizationService) AuthorizeDecision(actor models.Actor, req *models.ChangeRequest, slot *models.ApprovalDecision) error {
	if err := s.RequireActor(actor); err != nil {
		return err
	}
	if actor.ID == req.SubmitterID {
		s.deny(actor, string(slot.Role), actionDecide, "submitter")
		return errors.NewInvalidTransition("A submitter may not decide their own request")
	}
	if err := s.authorize(actor, string(slot.Role), actionDecide); err != nil {
		return err
	}
	if slot.AssigneeID != nil && *slot.AssigneeID != actor.ID && actor.Role != models.ActorRoleAdmin {
		s.deny(actor, string(slot.Role), actionDecide, "not the assignee")
		return errors.NewInvalidTransition(fmt.Sprintf("The %s decision is assigned to %s", slot.Role, *slot.AssigneeID))
	}
	for _, d := range req.Decisions {
		if d.Position == slot.Position || d.Outcome != models.DecisionOutcomeApproved {
			continue
		}
		if d.ReviewerID != nil && *d.ReviewerID == actor.ID {
			s.deny(actor, string(slot.Role), actionDecide, "already approved "+string(d.Role))
			return errors.NewInvalidTransition(fmt.Sprintf("%s already approved the %s step of this request", actor.ID, d.Role))
		}
	}
	return nil
}

// DecidableRoles lists the approval roles actor's role may decide.
func (s *AuthorizationService) DecidableRoles(actor models.Actor) ([]models.ApprovalRole, error) {
	roles := []models.ApprovalRole{
		models.ApprovalRolePeerReviewer,
		models.ApprovalRoleManager,
		models.ApprovalRoleHighImpactApprover,
	}
	var allowed []models.ApprovalRole
	for _, role := range roles {
		ok, err := s.Check(actor.Role, string(role), actionDecide)
		if err != nil {
			return nil, errors.NewInternalServerError(err, "Failed to evaluate permissions")
		}
		if ok {
			allowed = append(allowed, role)
		}
	}
	return allowed, nil
}

func (s *AuthorizationService) authorize(actor models.Actor, object, action string) error {
	if err := s.RequireActor(actor); err != nil {
		return err
	}
	allowed, err := s.Check(actor.Role, object, action)
	if err != nil {
		return errors.NewInternalServerError(err, "Failed to evaluate permissions")
	}
	if !allowed {
		s.deny(actor, object, action, "role")
		return errors.NewInvalidTransition(fmt.Sprintf("Role %s may not %s %s", actor.Role, action, object))
	}
	return nil
}

func (s *AuthorizationService) deny(actor models.Actor, object, action, reason string) {
	s.logger.WithFields(logrus.Fields{
		"subject": actor.ID,
		"role":    actor.Role,
		"object":  object,
		"action":  action,
		"reason":  reason,
	}).Warn("authz denied request")
}
