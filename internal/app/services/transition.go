package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/repositories"
	"github.com/sirupsen/logrus"
)

// transitioner applies one mutation to a request while holding its lock,
// records refused operations and publishes what was committed.
type transitioner struct {
	store     ChangeRequestStore
	audit     *AuditService
	locks     *RequestLocks
	publisher EventPublisher
	logger    *logrus.Entry
}

func (t *transitioner) apply(ctx context.Context, actor models.Actor, id uuid.UUID, op string, fn repositories.MutateFunc) (*models.ChangeRequest, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	var applied []models.AuditEvent
	req, err := t.store.Mutate(ctx, id, func(r *models.ChangeRequest) ([]models.AuditEvent, error) {
		events, err := fn(r)
		applied = events
		return events, err
	})
	if err != nil {
		t.reject(ctx, actor, id, op, err)
		return nil, err
	}

	transitionsTotal.WithLabelValues(op, string(req.Status)).Inc()
	t.logger.WithFields(logrus.Fields{
		"request_id": id,
		"actor":      actor.ID,
		"operation":  op,
		"status":     req.Status,
	}).Info("request updated")
	t.publish(ctx, req, applied)
	return req, nil
}

// reject records a refused operation on the request's timeline. Storage
// problems and unknown requests have nothing to record against.
func (t *transitioner) reject(ctx context.Context, actor models.Actor, id uuid.UUID, op string, cause error) {
	code := errors.CodeOf(cause)
	rejectedTotal.WithLabelValues(op, string(code)).Inc()

	switch code {
	case errors.CodeInvalidTransition, errors.CodeValidationFailed, errors.CodePolicyViolation,
		errors.CodeConnectorUnavailable, errors.CodeUnauthorized:
	default:
		return
	}

	entry := t.logger.WithFields(logrus.Fields{
		"request_id": id,
		"actor":      actor.ID,
		"operation":  op,
		"code":       code,
	})
	entry.WithError(cause).Warn("operation rejected")

	event := newEvent(actorOrAnonymous(actor), models.AuditActionOperationRejected, fmt.Sprintf("%s rejected: %s", op, cause.Error()))
	if err := t.audit.Append(ctx, id, event); err != nil {
		entry.WithError(err).Error("failed to record rejected operation")
	}
}

func (t *transitioner) publish(ctx context.Context, req *models.ChangeRequest, events []models.AuditEvent) {
	if t.publisher == nil || len(events) == 0 {
		return
	}
	if err := t.publisher.Publish(ctx, req, events); err != nil {
		logPublishFailure(t.logger, req, err)
	}
}

func actorOrAnonymous(actor models.Actor) models.Actor {
	if actor.ID == "" {
		actor.ID = "anonymous"
	}
	return actor
}

func statusRef(s models.RequestStatus) *models.RequestStatus {
	return &s
}

func roleRef(r models.ApprovalRole) *models.ApprovalRole {
	return &r
}

func stringRef(s string) *string {
	return &s
}
