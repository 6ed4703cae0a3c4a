package signal

import "github.com/sugunalabs/callserver/internal/domain"

// Server to client events. Field names are part of the channel
// protocol and consumed by the device SDKs as-is.

type IncomingCall struct {
	Type        string `json:"type"`
	FromUserID  string `json:"fromUserId"`
	CallType    string `json:"callType"`
	CallerName  string `json:"callerName,omitempty"`
	CallerImage string `json:"callerImage,omitempty"`
	RoomID      string `json:"roomId"`
}

type CallSuccess struct {
	Type       string `json:"type"`
	TargetID   string `json:"targetId"`
	TargetName string `json:"targetName,omitempty"`
	CallType   string `json:"callType"`
	RoomID     string `json:"roomId"`
}

type CallFailed struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type CallCancelled struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type CallRejected struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type CallStarted struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	RoomName  string `json:"roomName"`
	ServerURL string `json:"serverUrl"`
}

type CallEnded struct {
	Type     string `json:"type"`
	RoomName string `json:"roomName"`
}

func incomingCall(room *domain.Room, name, image string) IncomingCall {
	return IncomingCall{
		Type:        "incoming_call",
		FromUserID:  string(room.Caller),
		CallType:    string(room.Type),
		CallerName:  name,
		CallerImage: image,
		RoomID:      string(room.ID),
	}
}

func callFailed(reason string) CallFailed {
	return CallFailed{Type: "call_failed", Reason: reason}
}
