package models

type ActorRole string

const (
	ActorRoleDeveloper       ActorRole = "DEVELOPER"
	ActorRoleSeniorDeveloper ActorRole = "SENIOR_DEVELOPER"
	ActorRoleManager         ActorRole = "MANAGER"
	ActorRoleAdmin           ActorRole = "ADMIN"
	// ActorRoleSystem marks engine-originated events such as dispatch timeouts.
	ActorRoleSystem ActorRole = "SYSTEM"
)

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	ID            string    `json:"id"`
	Role          ActorRole `json:"role"`
	SourceAddress string    `json:"source_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
}

var SystemActor = Actor{ID: "system", Role: ActorRoleSystem}
