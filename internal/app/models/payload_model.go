package models

// Payload is a tagged union keyed by the request type: exactly one variant is
// set and it must match ChangeRequest.Type.
type Payload struct {
	SQLFix          *SQLFixPayload          `json:"sql_fix,omitempty"`
	ConfigUpdate    *ConfigUpdatePayload    `json:"config_update,omitempty"`
	PatchDeployment *PatchDeploymentPayload `json:"patch_deployment,omitempty"`
	JobExecution    *JobExecutionPayload    `json:"job_execution,omitempty"`
	LogRotation     *LogRotationPayload     `json:"log_rotation,omitempty"`
}

type SQLFixPayload struct {
	Statement      string `json:"statement"`
	TargetDatabase string `json:"target_database,omitempty"`
}

type ConfigUpdatePayload struct {
	Target string `json:"target"`
	Diff   string `json:"diff"`
}

type PatchDeploymentPayload struct {
	Artifact string `json:"artifact"`
	Version  string `json:"version"`
	Detail   string `json:"detail"`
}

type JobExecutionPayload struct {
	JobName string `json:"job_name"`
	Spec    string `json:"spec"`
}

type LogRotationPayload struct {
	Target        string `json:"target"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

// Variants lists the request types whose variant is set.
func (p Payload) Variants() []RequestType {
	var set []RequestType
	if p.SQLFix != nil {
		set = append(set, RequestTypeSQLFix)
	}
	if p.ConfigUpdate != nil {
		set = append(set, RequestTypeConfigUpdate)
	}
	if p.PatchDeployment != nil {
		set = append(set, RequestTypePatchDeployment)
	}
	if p.JobExecution != nil {
		set = append(set, RequestTypeJobExecution)
	}
	if p.LogRotation != nil {
		set = append(set, RequestTypeLogRotation)
	}
	return set
}

// Matches reports whether exactly the variant for t is set.
func (p Payload) Matches(t RequestType) bool {
	set := p.Variants()
	return len(set) == 1 && set[0] == t
}
