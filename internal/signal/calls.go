package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/match"
	"github.com/sugunalabs/callserver/internal/tenant"
)

func (ctl *Controller) handleMakeCall(
	ctx context.Context,
	appID domain.AppID,
	id domain.Identity,
	c *wsChannel,
	data []byte,
) {
	var p struct {
		Type        string `json:"type"`
		TargetID    string `json:"targetId"`
		CallType    string `json:"callType"`
		CallerName  string `json:"callerName"`
		CallerImage string `json:"callerImage"`
		Coins       int    `json:"coins"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(c, err)
		return
	}

	room, err := ctl.Coord.RequestCall(ctx, appID, CallRequest{
		Caller:      id,
		Target:      domain.Identity(p.TargetID),
		Type:        domain.CallType(p.CallType),
		Coins:       p.Coins,
		CallerName:  p.CallerName,
		CallerImage: p.CallerImage,
	})
	if err != nil {
		ctl.replyFailure(c, err)
		return
	}

	_ = sendJSON(c, CallSuccess{
		Type:     "call_success",
		TargetID: string(room.Callee),
		CallType: string(room.Type),
		RoomID:   string(room.ID),
	})
}

func (ctl *Controller) handleRandomCall(
	ctx context.Context,
	appID domain.AppID,
	id domain.Identity,
	c *wsChannel,
	data []byte,
) {
	var p struct {
		Type        string `json:"type"`
		CallType    string `json:"callType"`
		CallerName  string `json:"callerName"`
		CallerImage string `json:"callerImage"`
		Coins       int    `json:"coins"`
		Language    string `json:"language"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(c, err)
		return
	}

	room, err := ctl.Coord.RequestRandomCall(ctx, appID, CallRequest{
		Caller:      id,
		Type:        domain.CallType(p.CallType),
		Coins:       p.Coins,
		CallerName:  p.CallerName,
		CallerImage: p.CallerImage,
		Language:    p.Language,
	})
	if err != nil {
		ctl.replyFailure(c, err)
		return
	}

	_ = sendJSON(c, CallSuccess{
		Type:     "call_success",
		TargetID: string(room.Callee),
		CallType: string(room.Type),
		RoomID:   string(room.ID),
	})
}

// replyFailure turns a coordinator error into a call_failed event.
// Eligibility rejections carry their human-readable reason; anything
// else stays internal.
func (ctl *Controller) replyFailure(c *wsChannel, err error) {
	var rej *match.Rejection
	if errors.As(err, &rej) {
		_ = sendJSON(c, callFailed(rej.Reason))
		return
	}
	if errors.Is(err, tenant.ErrUnknownTenant) {
		_ = sendJSON(c, callFailed(err.Error()))
		return
	}
	log.Error().Err(err).Str("module", "signal").Msg("call request failed")
	_ = sendJSON(c, callFailed("Server Error"))
}
