package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionCreated                 AuditAction = "CREATED"
	AuditActionUpdated                 AuditAction = "UPDATED"
	AuditActionSQLValidated            AuditAction = "SQL_VALIDATED"
	AuditActionSubmitted               AuditAction = "SUBMITTED"
	AuditActionResubmitted             AuditAction = "RESUBMITTED"
	AuditActionDecisionApproved        AuditAction = "DECISION_APPROVED"
	AuditActionApproved                AuditAction = "APPROVED"
	AuditActionRejected                AuditAction = "REJECTED"
	AuditActionInfoRequested           AuditAction = "INFO_REQUESTED"
	AuditActionDispatched              AuditAction = "DISPATCHED"
	AuditActionExecutionCompleted      AuditAction = "EXECUTION_COMPLETED"
	AuditActionExecutionFailed         AuditAction = "EXECUTION_FAILED"
	AuditActionExecutionOutcomeUnknown AuditAction = "EXECUTION_OUTCOME_UNKNOWN"
	AuditActionExecutionResultIgnored  AuditAction = "EXECUTION_RESULT_IGNORED"
	AuditActionReconciled              AuditAction = "RECONCILED"
	AuditActionCancelled               AuditAction = "CANCELLED"
	AuditActionOperationRejected       AuditAction = "OPERATION_REJECTED"
)

// AuditEvent is an immutable timeline entry. Seq is assigned per request in
// application order, so (OccurredAt, Seq) and Seq alone order identically.
type AuditEvent struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	RequestID     uuid.UUID      `json:"request_id" gorm:"type:uuid;not null;uniqueIndex:idx_audit_request_seq"`
	Seq           int64          `json:"seq" gorm:"not null;uniqueIndex:idx_audit_request_seq"`
	ActorID       string         `json:"actor_id" gorm:"type:varchar(100);not null"`
	ActorRole     ActorRole      `json:"actor_role" gorm:"type:varchar(30)"`
	Action        AuditAction    `json:"action" gorm:"type:varchar(40);not null"`
	FromStatus    *RequestStatus `json:"from_status,omitempty" gorm:"type:varchar(30)"`
	ToStatus      *RequestStatus `json:"to_status,omitempty" gorm:"type:varchar(30)"`
	Detail        string         `json:"detail" gorm:"type:text"`
	SourceAddress *string        `json:"source_address,omitempty" gorm:"type:varchar(64)"`
	UserAgent     *string        `json:"user_agent,omitempty" gorm:"type:varchar(255)"`
	OccurredAt    time.Time      `json:"occurred_at" gorm:"not null;index"`
}

// AuditPage is one page of a request's timeline. NextAfter restarts the
// query after the last returned event.
type AuditPage struct {
	Events    []AuditEvent `json:"events"`
	NextAfter int64        `json:"next_after"`
	HasMore   bool         `json:"has_more"`
}
