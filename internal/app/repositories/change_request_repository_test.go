package repositories

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepository(t *testing.T) (*ChangeRequestRepository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewChangeRequestRepository(db), mock
}

func TestChangeRequestRepository_GetLoadsOrderedChain(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "change_requests" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "type", "status", "payload", "submitter_id", "created_at"}).
			AddRow(id, "Grant finance reports", "SQL_FIX", "PENDING_APPROVAL",
				`{"sql_fix":{"statement":"UPDATE t SET a = 1 WHERE id = 1"}}`, "dev-1", now))
	mock.ExpectQuery(`SELECT \* FROM "approval_decisions" WHERE "approval_decisions"."request_id" = \$1 ORDER BY position ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "position", "role", "outcome"}).
			AddRow(uuid.New(), id, 0, "PEER_REVIEWER", "APPROVED").
			AddRow(uuid.New(), id, 1, "MANAGER", "PENDING"))

	req, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, req.ID)
	require.Equal(t, models.RequestStatusPendingApproval, req.Status)
	require.NotNil(t, req.Payload.SQLFix)
	require.Equal(t, "UPDATE t SET a = 1 WHERE id = 1", req.Statement())
	require.Equal(t, []models.ApprovalRole{models.ApprovalRolePeerReviewer, models.ApprovalRoleManager}, req.Chain())
	require.Equal(t, models.ApprovalRoleManager, req.CurrentDecision().Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepository_GetNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT \* FROM "change_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), uuid.New())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestChangeRequestRepository_EventsUsesCursor(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "audit_events" WHERE request_id = \$1 AND seq > \$2 ORDER BY occurred_at ASC, seq ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_id", "seq", "actor_id", "action", "occurred_at"}).
			AddRow(uuid.New(), id, 3, "mgr-1", "APPROVED", at).
			AddRow(uuid.New(), id, 4, "mgr-1", "DISPATCHED", at.Add(time.Second)))

	events, err := repo.Events(context.Background(), id, 2, 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(3), events[0].Seq)
	require.Equal(t, models.AuditActionDispatched, events[1].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepository_MutateRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepository(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "change_requests" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "version"}).AddRow(id, "DRAFT", 3))
	mock.ExpectQuery(`SELECT \* FROM "approval_decisions" WHERE request_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	guardErr := errors.NewInvalidTransition("not allowed")
	_, err := repo.Mutate(context.Background(), id, func(req *models.ChangeRequest) ([]models.AuditEvent, error) {
		req.Status = models.RequestStatusCancelled
		return nil, guardErr
	})

	require.ErrorIs(t, err, guardErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepository_StatsStorageFailure(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT status AS key, COUNT\(\*\) AS count FROM "change_requests"`).
		WillReturnError(stderrors.New("connection reset"))

	_, err := repo.Stats(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CodeStorageFailure))
}

func TestChangeRequestRepository_StatsFillsEveryBucket(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT status AS key`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).
			AddRow("DRAFT", 2).
			AddRow("COMPLETED", 5))
	mock.ExpectQuery(`SELECT type AS key`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).
			AddRow("SQL_FIX", 7))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), stats.Total)
	require.Equal(t, int64(2), stats.ByStatus[models.RequestStatusDraft])
	require.Equal(t, int64(0), stats.ByStatus[models.RequestStatusFailed])
	require.Len(t, stats.ByStatus, len(models.RequestStatuses))
	require.Equal(t, int64(0), stats.ByType[models.RequestTypeLogRotation])
	require.NoError(t, mock.ExpectationsWereMet())
}
