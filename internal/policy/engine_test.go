package policy

import (
	"testing"

	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/internal/app/models"
	"github.com/nipunb1/BMO-RFB-UC2-SQL-Workflow/pkg/sqlimpact"
	"github.com/stretchr/testify/require"
)

func TestRequiredChain(t *testing.T) {
	t.Parallel()

	peer := models.ApprovalRolePeerReviewer
	manager := models.ApprovalRoleManager

	tests := []struct {
		name string
		typ  models.RequestType
		prio models.Priority
		env  models.Environment
		want []models.ApprovalRole
	}{
		{"sql fix in production", models.RequestTypeSQLFix, models.PriorityMedium, models.EnvironmentProduction, []models.ApprovalRole{peer, manager}},
		{"sql fix in dev", models.RequestTypeSQLFix, models.PriorityLow, models.EnvironmentDev, []models.ApprovalRole{peer}},
		{"patch in staging", models.RequestTypePatchDeployment, models.PriorityHigh, models.EnvironmentStaging, []models.ApprovalRole{peer}},
		{"config in production", models.RequestTypeConfigUpdate, models.PriorityHigh, models.EnvironmentProduction, []models.ApprovalRole{manager}},
		{"config in dev", models.RequestTypeConfigUpdate, models.PriorityLow, models.EnvironmentDev, []models.ApprovalRole{}},
		{"log rotation in staging", models.RequestTypeLogRotation, models.PriorityHigh, models.EnvironmentStaging, []models.ApprovalRole{}},
		{"job in dev", models.RequestTypeJobExecution, models.PriorityMedium, models.EnvironmentDev, []models.ApprovalRole{}},
		{"critical config in dev", models.RequestTypeConfigUpdate, models.PriorityCritical, models.EnvironmentDev, []models.ApprovalRole{peer, manager}},
		{"critical log rotation in production", models.RequestTypeLogRotation, models.PriorityCritical, models.EnvironmentProduction, []models.ApprovalRole{peer, manager}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, RequiredChain(tt.typ, tt.prio, tt.env))
		})
	}
}

func TestEvaluate_HighImpactElevates(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{HighImpactMode: HighImpactElevate})
	d := e.Evaluate(Input{
		Type:        models.RequestTypeSQLFix,
		Priority:    models.PriorityHigh,
		Environment: models.EnvironmentProduction,
		Impact:      sqlimpact.ImpactHigh,
	})

	require.False(t, d.Blocked)
	require.Equal(t, Version, d.Version)
	require.Equal(t, []models.ApprovalRole{
		models.ApprovalRolePeerReviewer,
		models.ApprovalRoleManager,
		models.ApprovalRoleHighImpactApprover,
	}, d.Chain)
}

func TestEvaluate_HighImpactBlocks(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{HighImpactMode: " BLOCK "})
	d := e.Evaluate(Input{
		Type:        models.RequestTypeSQLFix,
		Priority:    models.PriorityHigh,
		Environment: models.EnvironmentDev,
		Impact:      sqlimpact.ImpactHigh,
	})

	require.True(t, d.Blocked)
	require.NotEmpty(t, d.Reasons)
}

func TestEvaluate_MediumImpactKeepsBaseChain(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{})
	require.Equal(t, HighImpactElevate, e.Mode())

	d := e.Evaluate(Input{
		Type:        models.RequestTypeSQLFix,
		Priority:    models.PriorityMedium,
		Environment: models.EnvironmentProduction,
		Impact:      sqlimpact.ImpactMedium,
	})
	require.Equal(t, []models.ApprovalRole{models.ApprovalRolePeerReviewer, models.ApprovalRoleManager}, d.Chain)
}

func TestCheckResubmission(t *testing.T) {
	t.Parallel()

	e := NewEngine(Config{HighImpactMode: HighImpactElevate})
	high := Input{Type: models.RequestTypeSQLFix, Impact: sqlimpact.ImpactHigh}

	require.NotEmpty(t, e.CheckResubmission([]models.ApprovalRole{models.ApprovalRolePeerReviewer}, high))
	require.Empty(t, e.CheckResubmission([]models.ApprovalRole{
		models.ApprovalRolePeerReviewer,
		models.ApprovalRoleHighImpactApprover,
	}, high))
	require.Empty(t, e.CheckResubmission(nil, Input{Type: models.RequestTypeSQLFix, Impact: sqlimpact.ImpactLow}))
}
