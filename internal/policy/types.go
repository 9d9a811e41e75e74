package policy

import (
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
)

// Version identifies the rule table. Requests store the version their chain
// was computed with.
const Version = "approval-policy/1"

// HighImpactMode controls how a HIGH impact SQL verdict affects submission.
type HighImpactMode string

const (
	// HighImpactElevate appends a HIGH_IMPACT_APPROVER slot to the chain.
	HighImpactElevate HighImpactMode = "elevate"
	// HighImpactBlock refuses submission outright.
	HighImpactBlock HighImpactMode = "block"
)

// Config contains policy settings required by the engine.
type Config struct {
	HighImpactMode HighImpactMode
}

// Input is the minimum evaluation context. Impact is empty for requests
// without a verdict.
type Input struct {
	Type        models.RequestType
	Priority    models.Priority
	Environment models.Environment
	Impact      sqlimpact.ImpactLevel
}

// Decision is the deterministic policy result.
type Decision struct {
	Chain   []models.ApprovalRole
	Blocked bool
	Reasons []string
	Version string
}
