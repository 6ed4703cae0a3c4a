package domain

// PresenceRecord is the per-identity calling state kept in the
// tenant's directory store. Capability flags are written by the
// tenant's own app; the busy flag is owned by the coordinator and
// must be cleared on every exit path of a call.
type PresenceRecord struct {
	Identity     Identity
	CallEnabled  bool
	AudioEnabled bool
	VideoEnabled bool
	Busy         bool
	Language     string
}

// AllowsType reports whether the record enables the given call type.
func (p *PresenceRecord) AllowsType(t CallType) bool {
	if t == CallVideo {
		return p.VideoEnabled
	}
	return p.AudioEnabled
}
