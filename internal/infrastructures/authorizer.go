package infrastructures

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// rbacModel grants an action when the subject's role, directly or through
// role inheritance, holds a matching policy. A "*" object or action matches
// anything.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// rolePolicies is the role-to-permission table. Objects are either "request"
// or an approval role name, whose only action is "decide".
var rolePolicies = [][]string{
	{"DEVELOPER", "request", "read"},
	{"DEVELOPER", "request", "create"},
	{"DEVELOPER", "request", "update"},
	{"DEVELOPER", "request", "validate"},
	{"DEVELOPER", "request", "submit"},
	{"DEVELOPER", "request", "resubmit"},
	{"DEVELOPER", "request", "cancel"},
	{"DEVELOPER", "PEER_REVIEWER", "decide"},
	{"MANAGER", "MANAGER", "decide"},
	{"MANAGER", "request", "dispatch"},
	{"MANAGER", "request", "reconcile"},
	{"ADMIN", "*", "*"},
}

var roleInheritance = [][]string{
	{"SENIOR_DEVELOPER", "DEVELOPER"},
	{"MANAGER", "DEVELOPER"},
}

func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("authz: invalid model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}
	if _, err := enf.AddPolicies(rolePolicies); err != nil {
		return nil, fmt.Errorf("authz: failed to load policies: %w", err)
	}
	if _, err := enf.AddGroupingPolicies(roleInheritance); err != nil {
		return nil, fmt.Errorf("authz: failed to load role inheritance: %w", err)
	}
	return enf, nil
}
