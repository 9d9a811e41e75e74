package policy

import (
	"slices"
	"strings"

	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
)

// Engine performs pure approval routing decisions. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	highImpact HighImpactMode
}

func NewEngine(cfg Config) Engine {
	return Engine{highImpact: normalizeMode(cfg.HighImpactMode)}
}

func (e Engine) Mode() HighImpactMode {
	return e.highImpact
}

// RequiredChain is the base rule table: PRODUCTION requires MANAGER,
// SQL_FIX and PATCH_DEPLOYMENT require PEER_REVIEWER, CRITICAL requires both.
// Peer review always precedes manager approval.
func RequiredChain(t models.RequestType, p models.Priority, env models.Environment) []models.ApprovalRole {
	peer := t == models.RequestTypeSQLFix || t == models.RequestTypePatchDeployment || p == models.PriorityCritical
	manager := env == models.EnvironmentProduction || p == models.PriorityCritical

	chain := make([]models.ApprovalRole, 0, 2)
	if peer {
		chain = append(chain, models.ApprovalRolePeerReviewer)
	}
	if manager {
		chain = append(chain, models.ApprovalRoleManager)
	}
	return chain
}

// Evaluate computes the chain to freeze on a request at submission.
func (e Engine) Evaluate(in Input) Decision {
	d := Decision{
		Chain:   RequiredChain(in.Type, in.Priority, in.Environment),
		Version: Version,
	}
	if !e.highImpactApplies(in) {
		return d
	}

	switch e.highImpact {
	case HighImpactBlock:
		d.Blocked = true
		d.Reasons = append(d.Reasons, "HIGH impact SQL may not be submitted under the current policy")
	default:
		d.Chain = append(d.Chain, models.ApprovalRoleHighImpactApprover)
	}
	return d
}

// CheckResubmission reports why a frozen chain no longer covers the request.
// The chain itself is never changed after submission.
func (e Engine) CheckResubmission(frozen []models.ApprovalRole, in Input) []string {
	if !e.highImpactApplies(in) {
		return nil
	}
	if e.highImpact == HighImpactBlock {
		return []string{"HIGH impact SQL may not be submitted under the current policy"}
	}
	if !slices.Contains(frozen, models.ApprovalRoleHighImpactApprover) {
		return []string{"statement is now HIGH impact but the approval chain has no HIGH_IMPACT_APPROVER; submit a new request"}
	}
	return nil
}

func (e Engine) highImpactApplies(in Input) bool {
	return in.Type == models.RequestTypeSQLFix && in.Impact == sqlimpact.ImpactHigh
}

func normalizeMode(mode HighImpactMode) HighImpactMode {
	switch HighImpactMode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case HighImpactBlock:
		return HighImpactBlock
	default:
		return HighImpactElevate
	}
}
