package models

type ExecutionOutcome string

const (
	ExecutionOutcomeSuccess ExecutionOutcome = "SUCCESS"
	ExecutionOutcomeFailure ExecutionOutcome = "FAILURE"
	ExecutionOutcomeUnknown ExecutionOutcome = "UNKNOWN"
)

type ReconcileRequest struct {
	Outcome ExecutionOutcome `json:"outcome" validate:"required,oneof=SUCCESS FAILURE"`
	Detail  string           `json:"detail" validate:"omitempty,max=5000"`
}
