package models

import (
	"time"

	"github.com/google/uuid"
)

type ApprovalRole string

const (
	ApprovalRolePeerReviewer       ApprovalRole = "PEER_REVIEWER"
	ApprovalRoleManager            ApprovalRole = "MANAGER"
	ApprovalRoleHighImpactApprover ApprovalRole = "HIGH_IMPACT_APPROVER"
)

type DecisionOutcome string

const (
	DecisionOutcomePending       DecisionOutcome = "PENDING"
	DecisionOutcomeApproved      DecisionOutcome = "APPROVED"
	DecisionOutcomeRejected      DecisionOutcome = "REJECTED"
	DecisionOutcomeInfoRequested DecisionOutcome = "INFO_REQUESTED"
)

// ApprovalDecision is one slot of a request's frozen approval chain.
type ApprovalDecision struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	RequestID  uuid.UUID       `json:"request_id" gorm:"type:uuid;not null;uniqueIndex:idx_decision_request_position"`
	Position   int             `json:"position" gorm:"not null;uniqueIndex:idx_decision_request_position"`
	Role       ApprovalRole    `json:"role" gorm:"type:varchar(30);not null"`
	AssigneeID *string         `json:"assignee_id,omitempty" gorm:"type:varchar(100)"`
	ReviewerID *string         `json:"reviewer_id,omitempty" gorm:"type:varchar(100)"`
	Outcome    DecisionOutcome `json:"outcome" gorm:"type:varchar(20);not null"`
	Comment    *string         `json:"comment,omitempty" gorm:"type:text"`
	Cycle      int             `json:"cycle" gorm:"not null;default:0"`
	DecidedAt  *time.Time      `json:"decided_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"not null"`
}

type DecisionRequest struct {
	Role    ApprovalRole    `json:"role" validate:"required,oneof=PEER_REVIEWER MANAGER HIGH_IMPACT_APPROVER"`
	Outcome DecisionOutcome `json:"outcome" validate:"required,oneof=APPROVED REJECTED INFO_REQUESTED"`
	Comment string          `json:"comment" validate:"omitempty,max=2000"`
}
