package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MutateFunc applies one transition to req in place and returns the audit
// events it produced. Returning an error discards every change.
type MutateFunc func(req *models.ChangeRequest) ([]models.AuditEvent, error)

// PendingQuery selects requests awaiting a decision from an actor.
type PendingQuery struct {
	Roles       []models.ApprovalRole
	ActorID     string
	AnyAssignee bool
	Page        int
	Limit       int
}

type ChangeRequestRepository struct {
	db *gorm.DB
}

func NewChangeRequestRepository(db *gorm.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

func (r *ChangeRequestRepository) Create(ctx context.Context, req *models.ChangeRequest, events []models.AuditEvent) error {
	req.StampEvents(events)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(req).Error; err != nil {
			return errors.NewStorageFailure(err, "Failed to create change request")
		}
		if len(events) > 0 {
			if err := tx.Create(&events).Error; err != nil {
				return errors.NewStorageFailure(err, "Failed to append audit events")
			}
		}
		return nil
	})
}

func (r *ChangeRequestRepository) Get(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	var req models.ChangeRequest
	err := r.db.WithContext(ctx).
		Preload("Decisions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("Change request not found")
		}
		return nil, errors.NewStorageFailure(err, "Failed to get change request")
	}
	return &req, nil
}

// Mutate loads the request under a row lock, applies fn and commits the new
// state, its decisions and fn's audit events in one transaction. The version
// check guards against writers that bypass the row lock.
func (r *ChangeRequestRepository) Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.ChangeRequest, error) {
	var result *models.ChangeRequest

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.ChangeRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&req).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.NewNotFoundError("Change request not found")
			}
			return errors.NewStorageFailure(err, "Failed to lock change request")
		}
		if err := tx.Where("request_id = ?", id).Order("position ASC").Find(&req.Decisions).Error; err != nil {
			return errors.NewStorageFailure(err, "Failed to load approval chain")
		}

		version := req.Version
		events, err := fn(&req)
		if err != nil {
			return err
		}
		req.Version = version + 1
		req.StampEvents(events)

		res := tx.Model(&models.ChangeRequest{}).
			Where("id = ? AND version = ?", id, version).
			Select("*").
			Omit(clause.Associations).
			Updates(&req)
		if res.Error != nil {
			return errors.NewStorageFailure(res.Error, "Failed to update change request")
		}
		if res.RowsAffected == 0 {
			return errors.NewInvalidTransition("Change request was modified concurrently")
		}

		for i := range req.Decisions {
			if err := tx.Save(&req.Decisions[i]).Error; err != nil {
				return errors.NewStorageFailure(err, "Failed to save approval decision")
			}
		}
		if len(events) > 0 {
			if err := tx.Create(&events).Error; err != nil {
				return errors.NewStorageFailure(err, "Failed to append audit events")
			}
		}

		result = &req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AppendEvents records events that do not change the request, such as a
// rejected operation.
func (r *ChangeRequestRepository) AppendEvents(ctx context.Context, id uuid.UUID, events []models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.ChangeRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&req).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errors.NewNotFoundError("Change request not found")
			}
			return errors.NewStorageFailure(err, "Failed to lock change request")
		}
		req.StampEvents(events)
		if err := tx.Model(&models.ChangeRequest{}).Where("id = ?", id).Updates(map[string]interface{}{
			"audit_seq":     req.AuditSeq,
			"last_event_at": req.LastEventAt,
		}).Error; err != nil {
			return errors.NewStorageFailure(err, "Failed to advance audit sequence")
		}
		if err := tx.Create(&events).Error; err != nil {
			return errors.NewStorageFailure(err, "Failed to append audit events")
		}
		return nil
	})
}

func (r *ChangeRequestRepository) List(ctx context.Context, filter models.ChangeRequestFilter) (*models.Pagination[[]models.ChangeRequest], error) {
	query := r.db.WithContext(ctx).Model(&models.ChangeRequest{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Environment != nil {
		query = query.Where("environment = ?", *filter.Environment)
	}
	if filter.SubmitterID != nil {
		query = query.Where("submitter_id = ?", *filter.SubmitterID)
	}
	if filter.PendingRole != nil {
		query = query.Where("pending_role = ?", *filter.PendingRole)
	}
	return r.paginate(query, filter.Page, filter.Limit)
}

// Pending lists PENDING_APPROVAL requests whose current slot has one of the
// given roles, excluding the actor's own requests and slots named for
// someone else.
func (r *ChangeRequestRepository) Pending(ctx context.Context, q PendingQuery) (*models.Pagination[[]models.ChangeRequest], error) {
	if len(q.Roles) == 0 {
		return r.paginate(r.db.WithContext(ctx).Model(&models.ChangeRequest{}).Where("1 = 0"), q.Page, q.Limit)
	}
	query := r.db.WithContext(ctx).Model(&models.ChangeRequest{}).
		Where("status = ?", models.RequestStatusPendingApproval).
		Where("pending_role IN ?", q.Roles).
		Where("submitter_id <> ?", q.ActorID)
	if !q.AnyAssignee {
		query = query.Where(
			"EXISTS (SELECT 1 FROM approval_decisions d WHERE d.request_id = change_requests.id AND d.position = change_requests.current_step AND (d.assignee_id IS NULL OR d.assignee_id = ?))",
			q.ActorID,
		)
	}
	return r.paginate(query, q.Page, q.Limit)
}

func (r *ChangeRequestRepository) paginate(query *gorm.DB, page, limit int) (*models.Pagination[[]models.ChangeRequest], error) {
	// Set defaults
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit
	query = query.Session(&gorm.Session{})

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		return nil, errors.NewStorageFailure(err, "Failed to count change requests")
	}

	var requests []models.ChangeRequest
	err := query.
		Preload("Decisions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&requests).Error
	if err != nil {
		return nil, errors.NewStorageFailure(err, "Failed to list change requests")
	}

	totalPages := int((totalItems + int64(limit) - 1) / int64(limit))
	return &models.Pagination[[]models.ChangeRequest]{
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		TotalItems: int(totalItems),
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
		Items:      requests,
	}, nil
}

// Events returns up to limit events with a sequence number above after, in
// timeline order.
func (r *ChangeRequestRepository) Events(ctx context.Context, id uuid.UUID, after int64, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND seq > ?", id, after).
		Order("occurred_at ASC, seq ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.NewStorageFailure(err, "Failed to query audit events")
	}
	return events, nil
}

type groupCount struct {
	Key   string
	Count int64
}

func (r *ChangeRequestRepository) Stats(ctx context.Context) (*models.RequestStats, error) {
	var byStatus, byType []groupCount
	if err := r.db.WithContext(ctx).Model(&models.ChangeRequest{}).
		Select("status AS key, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, errors.NewStorageFailure(err, "Failed to count requests by status")
	}
	if err := r.db.WithContext(ctx).Model(&models.ChangeRequest{}).
		Select("type AS key, COUNT(*) AS count").Group("type").Scan(&byType).Error; err != nil {
		return nil, errors.NewStorageFailure(err, "Failed to count requests by type")
	}

	stats := &models.RequestStats{
		ByStatus: make(map[models.RequestStatus]int64, len(models.RequestStatuses)),
		ByType:   make(map[models.RequestType]int64, len(models.RequestTypes)),
	}
	for _, s := range models.RequestStatuses {
		stats.ByStatus[s] = 0
	}
	for _, t := range models.RequestTypes {
		stats.ByType[t] = 0
	}
	for _, row := range byStatus {
		stats.ByStatus[models.RequestStatus(row.Key)] = row.Count
		stats.Total += row.Count
	}
	for _, row := range byType {
		stats.ByType[models.RequestType(row.Key)] = row.Count
	}
	return stats, nil
}
