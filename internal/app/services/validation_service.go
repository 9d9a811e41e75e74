package services

import (
	"fmt"
	"strings"

	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/errors"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
)

// GateResult separates user-fixable problems from policy refusals.
type GateResult struct {
	Reasons       []string
	PolicyReasons []string
}

func (r GateResult) OK() bool {
	return len(r.Reasons) == 0 && len(r.PolicyReasons) == 0
}

// Err is nil when the gate passed. Field problems take precedence so the
// caller sees everything left to fix.
func (r GateResult) Err() error {
	switch {
	case len(r.Reasons) > 0:
		return errors.NewValidationFailed(append(append([]string{}, r.Reasons...), r.PolicyReasons...))
	case len(r.PolicyReasons) > 0:
		return errors.NewPolicyViolation(r.PolicyReasons)
	default:
		return nil
	}
}

// ValidationService is the pre-submission gate. It is stateless.
type ValidationService struct{}

func NewValidationService() *ValidationService {
	return &ValidationService{}
}

// Validate reports whether req may be submitted and, if not, every reason.
func (s *ValidationService) Validate(req *models.ChangeRequest) (bool, []string) {
	res := s.Check(req)
	return res.OK(), append(res.Reasons, res.PolicyReasons...)
}

func (s *ValidationService) Check(req *models.ChangeRequest) GateResult {
	var res GateResult

	if strings.TrimSpace(req.Title) == "" {
		res.Reasons = append(res.Reasons, "title is required")
	}
	if !req.Payload.Matches(req.Type) {
		res.Reasons = append(res.Reasons, fmt.Sprintf("payload must contain exactly the %s variant", payloadKey(req.Type)))
		return res
	}

	switch req.Type {
	case models.RequestTypeSQLFix:
		res.Reasons = append(res.Reasons, checkSQLFix(req)...)
	case models.RequestTypeConfigUpdate:
		p := req.Payload.ConfigUpdate
		if blank(p.Target) {
			res.Reasons = append(res.Reasons, "config target is required")
		}
		if blank(p.Diff) {
			res.Reasons = append(res.Reasons, "config diff is required")
		}
		if blank(req.RollbackPlan) {
			res.Reasons = append(res.Reasons, "rollback plan is required for config updates")
		}
	case models.RequestTypePatchDeployment:
		p := req.Payload.PatchDeployment
		if blank(p.Artifact) {
			res.Reasons = append(res.Reasons, "patch artifact is required")
		}
		if blank(p.Detail) {
			res.Reasons = append(res.Reasons, "deployment detail is required")
		}
		res.PolicyReasons = append(res.PolicyReasons, checkProductionPriority(req)...)
	case models.RequestTypeJobExecution:
		p := req.Payload.JobExecution
		if blank(p.JobName) {
			res.Reasons = append(res.Reasons, "job name is required")
		}
		if blank(p.Spec) {
			res.Reasons = append(res.Reasons, "job spec is required")
		}
		res.PolicyReasons = append(res.PolicyReasons, checkProductionPriority(req)...)
	case models.RequestTypeLogRotation:
		p := req.Payload.LogRotation
		if blank(p.Target) {
			res.Reasons = append(res.Reasons, "log rotation target is required")
		}
		if p.RetentionDays < 0 {
			res.Reasons = append(res.Reasons, "retention days cannot be negative")
		}
	}
	return res
}

func checkSQLFix(req *models.ChangeRequest) []string {
	stmt := req.Statement()
	if blank(stmt) {
		return []string{"SQL statement is required"}
	}
	v := req.Verdict
	if v == nil {
		return []string{"SQL statement has not been validated"}
	}
	if v.StatementHash != sqlimpact.Fingerprint(stmt) {
		return []string{"SQL statement changed after validation; validate it again"}
	}
	if !v.IsValid {
		return []string{"SQL statement is invalid: " + v.Message}
	}
	return nil
}

func checkProductionPriority(req *models.ChangeRequest) []string {
	if req.Environment != models.EnvironmentProduction {
		return nil
	}
	if req.Priority == models.PriorityHigh || req.Priority == models.PriorityCritical {
		return nil
	}
	return []string{fmt.Sprintf("%s to PRODUCTION requires HIGH or CRITICAL priority, got %s", req.Type, req.Priority)}
}

func payloadKey(t models.RequestType) string {
	return strings.ToLower(string(t))
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
