// Package domain contains entity without logic, just meta-data
package domain

type (
	// AppID identifies an isolated tenant context.
	AppID string
	// Identity is a tenant-scoped user id. It is owned by the tenant's
	// directory store; this server only reads it.
	Identity string
)

type CallType string

const (
	CallAudio CallType = "Audio"
	CallVideo CallType = "Video"
)

// MinCoins is the balance a payer needs before a call of the given
// type may start.
func MinCoins(t CallType) int {
	if t == CallVideo {
		return 300
	}
	return 100
}

type Role string

const (
	RoleHost     Role = "host"
	RoleAudience Role = "audience"
	// RoleSignaling authenticates the signaling channel itself and
	// carries no media grants.
	RoleSignaling Role = "signaling"
)

// Grants are the media permissions embedded in a capability token.
type Grants struct {
	CanPublish     bool `json:"canPublish"`
	CanSubscribe   bool `json:"canSubscribe"`
	CanPublishData bool `json:"canPublishData"`
}

var grantsByRole = map[Role]Grants{
	RoleHost:      {CanPublish: true, CanSubscribe: true, CanPublishData: true},
	RoleAudience:  {CanSubscribe: true},
	RoleSignaling: {},
}

// GrantsFor maps a role onto its media grants. Unknown roles get no
// grants at all.
func GrantsFor(role Role) Grants {
	return grantsByRole[role]
}

func ValidRole(role Role) bool {
	_, ok := grantsByRole[role]
	return ok
}
