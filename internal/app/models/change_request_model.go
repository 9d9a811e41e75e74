package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
)

type RequestType string

const (
	RequestTypeSQLFix          RequestType = "SQL_FIX"
	RequestTypeConfigUpdate    RequestType = "CONFIG_UPDATE"
	RequestTypePatchDeployment RequestType = "PATCH_DEPLOYMENT"
	RequestTypeLogRotation     RequestType = "LOG_ROTATION"
	RequestTypeJobExecution    RequestType = "JOB_EXECUTION"
)

var RequestTypes = []RequestType{
	RequestTypeSQLFix,
	RequestTypeConfigUpdate,
	RequestTypePatchDeployment,
	RequestTypeLogRotation,
	RequestTypeJobExecution,
}

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

type Environment string

const (
	EnvironmentDev        Environment = "DEV"
	EnvironmentStaging    Environment = "STAGING"
	EnvironmentProduction Environment = "PRODUCTION"
)

type RequestStatus string

const (
	RequestStatusDraft             RequestStatus = "DRAFT"
	RequestStatusPendingValidation RequestStatus = "PENDING_VALIDATION"
	RequestStatusPendingApproval   RequestStatus = "PENDING_APPROVAL"
	RequestStatusNeedsInfo         RequestStatus = "NEEDS_INFO"
	RequestStatusApproved          RequestStatus = "APPROVED"
	RequestStatusInProgress        RequestStatus = "IN_PROGRESS"
	RequestStatusCompleted         RequestStatus = "COMPLETED"
	RequestStatusFailed            RequestStatus = "FAILED"
	RequestStatusRejected          RequestStatus = "REJECTED"
	RequestStatusCancelled         RequestStatus = "CANCELLED"
)

var RequestStatuses = []RequestStatus{
	RequestStatusDraft,
	RequestStatusPendingValidation,
	RequestStatusPendingApproval,
	RequestStatusNeedsInfo,
	RequestStatusApproved,
	RequestStatusInProgress,
	RequestStatusCompleted,
	RequestStatusFailed,
	RequestStatusRejected,
	RequestStatusCancelled,
}

func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusCompleted, RequestStatusFailed, RequestStatusRejected, RequestStatusCancelled:
		return true
	default:
		return false
	}
}

// ImpactVerdict is the analyzer output attached to a SQL_FIX request.
type ImpactVerdict = sqlimpact.Verdict

type ChangeRequest struct {
	ID                    uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	Title                 string             `json:"title" gorm:"type:varchar(200);not null"`
	Description           string             `json:"description" gorm:"type:text"`
	Type                  RequestType        `json:"type" gorm:"type:varchar(30);not null;index"`
	Priority              Priority           `json:"priority" gorm:"type:varchar(20);not null"`
	Environment           Environment        `json:"environment" gorm:"type:varchar(20);not null;index"`
	Application           string             `json:"application" gorm:"type:varchar(100)"`
	SubmitterID           string             `json:"submitter_id" gorm:"type:varchar(100);not null;index"`
	PeerReviewerID        *string            `json:"peer_reviewer_id,omitempty" gorm:"type:varchar(100)"`
	BusinessJustification string             `json:"business_justification" gorm:"type:text"`
	RollbackPlan          string             `json:"rollback_plan" gorm:"type:text"`
	Payload               Payload            `json:"payload" gorm:"type:jsonb;serializer:json;not null"`
	Verdict               *ImpactVerdict     `json:"verdict,omitempty" gorm:"type:jsonb;serializer:json"`
	VerdictAttachedAt     *time.Time         `json:"verdict_attached_at,omitempty"`
	Status                RequestStatus      `json:"status" gorm:"type:varchar(30);not null;index"`
	PolicyVersion         string             `json:"policy_version,omitempty" gorm:"type:varchar(30)"`
	CurrentStep           int                `json:"current_step" gorm:"not null;default:0"`
	PendingRole           *ApprovalRole      `json:"pending_role,omitempty" gorm:"type:varchar(30);index"`
	Cycle                 int                `json:"cycle" gorm:"not null;default:0"`
	ExecutionOutcome      *ExecutionOutcome  `json:"execution_outcome,omitempty" gorm:"type:varchar(20)"`
	ExecutionDetail       *string            `json:"execution_detail,omitempty" gorm:"type:text"`
	SubmittedAt           *time.Time         `json:"submitted_at,omitempty"`
	DispatchedAt          *time.Time         `json:"dispatched_at,omitempty"`
	CompletedAt           *time.Time         `json:"completed_at,omitempty"`
	Version               int64              `json:"version" gorm:"not null;default:0"`
	AuditSeq              int64              `json:"audit_seq" gorm:"not null;default:0"`
	LastEventAt           time.Time          `json:"last_event_at"`
	CreatedAt             time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time          `json:"updated_at" gorm:"not null"`
	Decisions             []ApprovalDecision `json:"decisions" gorm:"foreignKey:RequestID"`
}

// Chain returns the frozen approval roles in order.
func (r *ChangeRequest) Chain() []ApprovalRole {
	roles := make([]ApprovalRole, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		roles = append(roles, d.Role)
	}
	return roles
}

// CurrentDecision is the first slot not yet approved, or nil when the chain
// is fully approved.
func (r *ChangeRequest) CurrentDecision() *ApprovalDecision {
	for i := range r.Decisions {
		if r.Decisions[i].Outcome != DecisionOutcomeApproved {
			return &r.Decisions[i]
		}
	}
	return nil
}

// StampEvents numbers events after the request's last audit entry and keeps
// their timestamps non-decreasing, so timeline order equals application order
// even if the clock steps backwards.
func (r *ChangeRequest) StampEvents(events []AuditEvent) {
	for i := range events {
		e := &events[i]
		r.AuditSeq++
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.RequestID = r.ID
		e.Seq = r.AuditSeq
		if e.OccurredAt.Before(r.LastEventAt) {
			e.OccurredAt = r.LastEventAt
		}
		r.LastEventAt = e.OccurredAt
	}
}

// Statement is the SQL text of a SQL_FIX payload, empty for other types.
func (r *ChangeRequest) Statement() string {
	if r.Payload.SQLFix == nil {
		return ""
	}
	return r.Payload.SQLFix.Statement
}

type ChangeRequestCreateRequest struct {
	Title                 string      `json:"title" validate:"required,max=200"`
	Description           string      `json:"description" validate:"omitempty,max=5000"`
	Type                  RequestType `json:"type" validate:"required,oneof=SQL_FIX CONFIG_UPDATE PATCH_DEPLOYMENT LOG_ROTATION JOB_EXECUTION"`
	Priority              Priority    `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	Environment           Environment `json:"environment" validate:"required,oneof=DEV STAGING PRODUCTION"`
	Application           string      `json:"application" validate:"omitempty,max=100"`
	PeerReviewerID        *string     `json:"peer_reviewer_id,omitempty" validate:"omitempty,max=100"`
	BusinessJustification string      `json:"business_justification" validate:"omitempty,max=5000"`
	RollbackPlan          string      `json:"rollback_plan" validate:"omitempty,max=5000"`
	Payload               Payload     `json:"payload"`
}

// ChangeRequestUpdateRequest patches a DRAFT or NEEDS_INFO request. Nil fields
// are left unchanged.
type ChangeRequestUpdateRequest struct {
	Title                 *string      `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description           *string      `json:"description,omitempty" validate:"omitempty,max=5000"`
	Priority              *Priority    `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Environment           *Environment `json:"environment,omitempty" validate:"omitempty,oneof=DEV STAGING PRODUCTION"`
	Application           *string      `json:"application,omitempty" validate:"omitempty,max=100"`
	PeerReviewerID        *string      `json:"peer_reviewer_id,omitempty" validate:"omitempty,max=100"`
	BusinessJustification *string      `json:"business_justification,omitempty" validate:"omitempty,max=5000"`
	RollbackPlan          *string      `json:"rollback_plan,omitempty" validate:"omitempty,max=5000"`
	Payload               *Payload     `json:"payload,omitempty"`
}

type ChangeRequestFilter struct {
	Status      *RequestStatus `query:"status" validate:"omitempty,oneof=DRAFT PENDING_VALIDATION PENDING_APPROVAL NEEDS_INFO APPROVED IN_PROGRESS COMPLETED FAILED REJECTED CANCELLED"`
	Type        *RequestType   `query:"type" validate:"omitempty,oneof=SQL_FIX CONFIG_UPDATE PATCH_DEPLOYMENT LOG_ROTATION JOB_EXECUTION"`
	Environment *Environment   `query:"environment" validate:"omitempty,oneof=DEV STAGING PRODUCTION"`
	SubmitterID *string        `query:"submitter_id" validate:"omitempty,max=100"`
	PendingRole *ApprovalRole  `query:"pending_role" validate:"omitempty,oneof=PEER_REVIEWER MANAGER HIGH_IMPACT_APPROVER"`
	Page        int            `query:"page" validate:"omitempty,min=1"`
	Limit       int            `query:"limit" validate:"omitempty,min=1,max=100"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=1000"`
}

type AnalyzeSQLRequest struct {
	Statement string `json:"statement" validate:"required"`
}

// ChangeRequestDetail is a request together with its timeline.
type ChangeRequestDetail struct {
	Request  *ChangeRequest `json:"request"`
	Timeline []AuditEvent   `json:"timeline"`
}

type RequestStats struct {
	Total    int64                   `json:"total"`
	ByStatus map[RequestStatus]int64 `json:"by_status"`
	ByType   map[RequestType]int64   `json:"by_type"`
}
