package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// AuditService reads and appends request timelines. Events written as part of
// a transition go through the store's Mutate instead, so they commit with it.
type AuditService struct {
	store ChangeRequestStore
}

func NewAuditService(store ChangeRequestStore) *AuditService {
	return &AuditService{
		store: store,
	}
}

// Append records events that accompany no state change. A storage error is
// returned to the caller, whose operation must fail with it.
func (s *AuditService) Append(ctx context.Context, requestID uuid.UUID, events ...models.AuditEvent) error {
	return s.store.AppendEvents(ctx, requestID, events)
}

// Page returns up to limit events after the given sequence number.
func (s *AuditService) Page(ctx context.Context, requestID uuid.UUID, after int64, limit int) (*models.AuditPage, error) {
	limit = clampPageSize(limit)
	if after < 0 {
		after = 0
	}

	events, err := s.store.Events(ctx, requestID, after, limit+1)
	if err != nil {
		return nil, err
	}

	page := &models.AuditPage{NextAfter: after}
	if len(events) > limit {
		events = events[:limit]
		page.HasMore = true
	}
	page.Events = events
	if n := len(events); n > 0 {
		page.NextAfter = events[n-1].Seq
	}
	return page, nil
}

// Query starts a lazy cursor over the whole timeline of a request.
func (s *AuditService) Query(requestID uuid.UUID) *AuditCursor {
	return s.Resume(requestID, 0, defaultAuditPageSize)
}

// Resume restarts a cursor after a previously seen sequence number.
func (s *AuditService) Resume(requestID uuid.UUID, after int64, pageSize int) *AuditCursor {
	return &AuditCursor{
		audit:     s,
		requestID: requestID,
		after:     after,
		pageSize:  clampPageSize(pageSize),
	}
}

// Timeline drains a cursor into one ordered slice.
func (s *AuditService) Timeline(ctx context.Context, requestID uuid.UUID) ([]models.AuditEvent, error) {
	cursor := s.Query(requestID)
	timeline := make([]models.AuditEvent, 0)
	for {
		events, err := cursor.Next(ctx)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return timeline, nil
		}
		timeline = append(timeline, events...)
	}
}

// AuditCursor pages through a timeline in order. It is not safe for
// concurrent use.
type AuditCursor struct {
	audit     *AuditService
	requestID uuid.UUID
	after     int64
	pageSize  int
	done      bool
}

// Next returns the next page, or an empty slice once the timeline is
// exhausted. Events appended later are picked up by a subsequent Resume.
func (c *AuditCursor) Next(ctx context.Context) ([]models.AuditEvent, error) {
	if c.done {
		return nil, nil
	}
	page, err := c.audit.Page(ctx, c.requestID, c.after, c.pageSize)
	if err != nil {
		return nil, err
	}
	c.after = page.NextAfter
	c.done = !page.HasMore
	return page.Events, nil
}

// After is the sequence number to resume from.
func (c *AuditCursor) After() int64 {
	return c.after
}

func clampPageSize(limit int) int {
	if limit <= 0 {
		return defaultAuditPageSize
	}
	if limit > maxAuditPageSize {
		return maxAuditPageSize
	}
	return limit
}

func newEvent(actor models.Actor, action models.AuditAction, detail string) models.AuditEvent {
	e := models.AuditEvent{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		Detail:     detail,
		OccurredAt: time.Now(),
	}
	if actor.SourceAddress != "" {
		addr := actor.SourceAddress
		e.SourceAddress = &addr
	}
	if actor.UserAgent != "" {
		ua := actor.UserAgent
		e.UserAgent = &ua
	}
	return e
}

func transitionEvent(actor models.Actor, action models.AuditAction, from, to models.RequestStatus, detail string) models.AuditEvent {
	e := newEvent(actor, action, detail)
	e.FromStatus = &from
	e.ToStatus = &to
	return e
}
