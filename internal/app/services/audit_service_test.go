package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/stretchr/testify/require"
)

func seedTimeline(t *testing.T, store *memoryStore, n int) uuid.UUID {
	t.Helper()
	req := &models.ChangeRequest{ID: uuid.New(), Status: models.RequestStatusDraft, CreatedAt: time.Now()}
	events := make([]models.AuditEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, newEvent(dev1, models.AuditActionUpdated, fmt.Sprintf("edit %d", i)))
	}
	require.NoError(t, store.Create(context.Background(), req, events))
	return req.ID
}

func TestAuditService_PageAndCursor(t *testing.T) {
	store := newMemoryStore()
	audit := NewAuditService(store)
	id := seedTimeline(t, store, 7)
	ctx := context.Background()

	page, err := audit.Page(ctx, id, 0, 3)
	require.NoError(t, err)
	require.Len(t, page.Events, 3)
	require.True(t, page.HasMore)
	require.Equal(t, int64(3), page.NextAfter)

	page, err = audit.Page(ctx, id, 6, 3)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.False(t, page.HasMore)
	require.Equal(t, int64(7), page.NextAfter)

	cursor := audit.Resume(id, 0, 3)
	var seqs []int64
	for {
		events, err := cursor.Next(ctx)
		require.NoError(t, err)
		if len(events) == 0 {
			break
		}
		for _, e := range events {
			seqs = append(seqs, e.Seq)
		}
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, seqs)
	require.Equal(t, int64(7), cursor.After())

	require.NoError(t, audit.Append(ctx, id, newEvent(dev1, models.AuditActionUpdated, "late edit")))
	resumed := audit.Resume(id, cursor.After(), 10)
	events, err := resumed.Next(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int64(8), events[0].Seq)
}

func TestAuditService_AppendFailureIsReturned(t *testing.T) {
	store := newMemoryStore()
	audit := NewAuditService(store)
	id := seedTimeline(t, store, 1)

	store.appendErrs = 1
	err := audit.Append(context.Background(), id, newEvent(dev1, models.AuditActionUpdated, "x"))
	require.True(t, errors.Is(err, errors.CodeStorageFailure))
}

func TestStampEventsKeepsOrderWhenClockStepsBack(t *testing.T) {
	req := &models.ChangeRequest{ID: uuid.New()}
	later := newEvent(dev1, models.AuditActionCreated, "")
	earlier := newEvent(dev1, models.AuditActionUpdated, "")
	earlier.OccurredAt = later.OccurredAt.Add(-time.Minute)

	events := []models.AuditEvent{later, earlier}
	req.StampEvents(events)

	require.Equal(t, int64(1), events[0].Seq)
	require.Equal(t, int64(2), events[1].Seq)
	require.False(t, events[1].OccurredAt.Before(events[0].OccurredAt))
	require.Equal(t, req.ID, events[1].RequestID)
}
