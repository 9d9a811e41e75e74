package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/repositories"
)

// ChangeRequestStore persists requests, their approval chains and audit
// events. Mutate must apply the state change and its events atomically.
type ChangeRequestStore interface {
	Create(ctx context.Context, req *models.ChangeRequest, events []models.AuditEvent) error
	Get(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error)
	Mutate(ctx context.Context, id uuid.UUID, fn repositories.MutateFunc) (*models.ChangeRequest, error)
	AppendEvents(ctx context.Context, id uuid.UUID, events []models.AuditEvent) error
	List(ctx context.Context, filter models.ChangeRequestFilter) (*models.Pagination[[]models.ChangeRequest], error)
	Pending(ctx context.Context, q repositories.PendingQuery) (*models.Pagination[[]models.ChangeRequest], error)
	Events(ctx context.Context, id uuid.UUID, after int64, limit int) ([]models.AuditEvent, error)
	Stats(ctx context.Context) (*models.RequestStats, error)
}

var _ ChangeRequestStore = (*repositories.ChangeRequestRepository)(nil)
