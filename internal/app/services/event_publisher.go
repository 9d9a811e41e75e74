package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/infrastructures"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// EventPublisher announces committed audit events to downstream notifiers.
// Publishing happens after commit; a failure never undoes a transition.
type EventPublisher interface {
	Publish(ctx context.Context, req *models.ChangeRequest, events []models.AuditEvent) error
}

// RequestEventMessage is the payload published for every audit event.
type RequestEventMessage struct {
	RequestID   uuid.UUID            `json:"request_id"`
	Seq         int64                `json:"seq"`
	Action      models.AuditAction   `json:"action"`
	ActorID     string               `json:"actor_id"`
	Status      models.RequestStatus `json:"status"`
	PendingRole *models.ApprovalRole `json:"pending_role,omitempty"`
	Type        models.RequestType   `json:"type"`
	Environment models.Environment   `json:"environment"`
	SubmitterID string               `json:"submitter_id"`
	Detail      string               `json:"detail,omitempty"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

type RedisEventPublisher struct {
	redis   *redis.Client
	channel string
}

func NewRedisEventPublisher(redis *redis.Client, cfg *infrastructures.AppConfig) *RedisEventPublisher {
	return &RedisEventPublisher{
		redis:   redis,
		channel: cfg.EventsChannel,
	}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, req *models.ChangeRequest, events []models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := p.redis.Pipeline()
	for _, e := range events {
		data, err := json.Marshal(RequestEventMessage{
			RequestID:   req.ID,
			Seq:         e.Seq,
			Action:      e.Action,
			ActorID:     e.ActorID,
			Status:      req.Status,
			PendingRole: req.PendingRole,
			Type:        req.Type,
			Environment: req.Environment,
			SubmitterID: req.SubmitterID,
			Detail:      e.Detail,
			OccurredAt:  e.OccurredAt,
		})
		if err != nil {
			return err
		}
		pipe.Publish(ctx, p.channel, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// logPublishFailure is used by callers that must not fail on notification errors.
func logPublishFailure(logger *logrus.Entry, req *models.ChangeRequest, err error) {
	logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"status":     req.Status,
	}).WithError(err).Warn("failed to publish request events")
}
