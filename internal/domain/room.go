package domain

import (
	"fmt"
	"time"
)

type RoomID string

// NewRoomID builds a room id unique across concurrent calls of a
// tenant: the caller id plus a millisecond timestamp.
func NewRoomID(caller Identity, at time.Time) RoomID {
	return RoomID(fmt.Sprintf("room_%s_%d", caller, at.UnixMilli()))
}

// CallStatus is the room lifecycle state machine. Requested and
// Ringing are the same phase seen from the two sides of the call;
// Answered is the only state that carries billing.
type CallStatus string

const (
	StatusRequested CallStatus = "Requested"
	StatusRinging   CallStatus = "Ringing"
	StatusAnswered  CallStatus = "Answered"
	StatusEnded     CallStatus = "Ended"
	StatusCancelled CallStatus = "Cancelled"
	StatusRejected  CallStatus = "Rejected"
	StatusMissed    CallStatus = "Missed Call"
)

// Terminal reports whether the status ends the room's life.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusEnded, StatusCancelled, StatusRejected, StatusMissed:
		return true
	}
	return false
}

// Room is one call session instance: its participants and status.
// The caller is always the payer of a metered session.
type Room struct {
	ID          RoomID
	AppID       AppID
	Caller      Identity
	Callee      Identity
	Type        CallType
	Status      CallStatus
	RequestedAt time.Time
}

// Other returns the peer of the given participant.
func (r *Room) Other(id Identity) Identity {
	if id == r.Caller {
		return r.Callee
	}
	return r.Caller
}
