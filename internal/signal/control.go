package signal

import (
	"context"
	"encoding/json"

	"github.com/sugunalabs/callserver/internal/domain"
)

func (ctl *Controller) handleAcceptCall(
	ctx context.Context,
	appID domain.AppID,
	id domain.Identity,
	c *wsChannel,
	data []byte,
) {
	var p struct {
		Type         string `json:"type"`
		SenderUserID string `json:"senderUserId"`
		CallType     string `json:"callType"`
		WebhookURL   string `json:"webhookUrl"`
		PricePerMin  int    `json:"pricePerMin"`
		RoomID       string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(c, err)
		return
	}

	err := ctl.Coord.Accept(ctx, appID, AcceptParams{
		Callee:      id,
		Caller:      domain.Identity(p.SenderUserID),
		Type:        domain.CallType(p.CallType),
		RoomID:      domain.RoomID(p.RoomID),
		WebhookURL:  p.WebhookURL,
		PricePerMin: p.PricePerMin,
	})
	if err != nil {
		ctl.replyFailure(c, err)
	}
}

func (ctl *Controller) handleCancelCall(
	ctx context.Context,
	appID domain.AppID,
	id domain.Identity,
	c *wsChannel,
	data []byte,
) {
	var p struct {
		Type         string `json:"type"`
		TargetUserID string `json:"targetUserId"`
		RoomID       string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(c, err)
		return
	}
	_ = ctl.Coord.Cancel(ctx, appID, id, domain.Identity(p.TargetUserID), domain.RoomID(p.RoomID))
}

func (ctl *Controller) handleRejectCall(
	ctx context.Context,
	appID domain.AppID,
	id domain.Identity,
	c *wsChannel,
	data []byte,
) {
	var p struct {
		Type         string `json:"type"`
		TargetUserID string `json:"targetUserId"`
		RoomID       string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(c, err)
		return
	}
	_ = ctl.Coord.Reject(ctx, appID, id, domain.Identity(p.TargetUserID), domain.RoomID(p.RoomID))
}

func (ctl *Controller) handleEndCall(
	ctx context.Context,
	appID domain.AppID,
	id domain.Identity,
	c *wsChannel,
	data []byte,
) {
	var p struct {
		Type     string `json:"type"`
		RoomName string `json:"roomName"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		badPayload(c, err)
		return
	}
	_ = ctl.Coord.End(ctx, appID, id, domain.RoomID(p.RoomName))
}

func (ctl *Controller) handlePing(c *wsChannel) {
	_ = sendJSON(c, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}
