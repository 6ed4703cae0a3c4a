// Package wake pokes a backgrounded device through the tenant's push
// gateway so it can surface an incoming call even when its signaling
// channel is not connected. Delivery is fire-and-forget: a wake push
// never blocks and never fails call setup.
package wake

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/tenant"
)

// CallPush is the payload a device needs to render an incoming call.
type CallPush struct {
	Sender      domain.Identity
	SenderName  string
	SenderImage string
	CallType    domain.CallType
	Room        domain.RoomID
}

type Notifier interface {
	IncomingCall(t *tenant.Context, target domain.Identity, push CallPush)
	CancelCall(t *tenant.Context, target domain.Identity, room domain.RoomID)
}

// Gateway delivers pushes over the tenant's wake endpoint. The device
// token comes from the directory store, where it is kept encrypted.
type Gateway struct {
	client *http.Client
}

func NewGateway(timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gateway{client: &http.Client{Timeout: timeout}}
}

type pushBody struct {
	Token    string            `json:"token"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data"`
}

func (g *Gateway) IncomingCall(t *tenant.Context, target domain.Identity, push CallPush) {
	go g.deliver(t, target, map[string]string{
		"type":        "IncomingCall",
		"senderId":    string(push.Sender),
		"senderName":  push.SenderName,
		"senderImage": push.SenderImage,
		"callType":    string(push.CallType),
		"callId":      string(push.Room),
		"appId":       string(t.AppID),
	})
}

func (g *Gateway) CancelCall(t *tenant.Context, target domain.Identity, room domain.RoomID) {
	go g.deliver(t, target, map[string]string{
		"type":   "CancelCall",
		"callId": string(room),
	})
}

func (g *Gateway) deliver(t *tenant.Context, target domain.Identity, data map[string]string) {
	if t.WakeURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.client.Timeout)
	defer cancel()

	token, err := t.Store.WakeToken(ctx, target)
	if err != nil {
		log.Debug().Str("module", "wake").Str("identity", string(target)).Msg("no wake token")
		return
	}

	payload, err := json.Marshal(pushBody{Token: token, Priority: "high", Data: data})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.WakeURL, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("module", "wake").Str("identity", string(target)).Msg("wake push failed")
		return
	}
	resp.Body.Close()
	log.Info().Str("module", "wake").Str("identity", string(target)).Str("type", data["type"]).Msg("wake push sent")
}

// Nop drops every push; used when a tenant has no gateway and in tests.
type Nop struct{}

func (Nop) IncomingCall(t *tenant.Context, target domain.Identity, push CallPush) {}
func (Nop) CancelCall(t *tenant.Context, target domain.Identity, room domain.RoomID) {
}

var (
	_ Notifier = (*Gateway)(nil)
	_ Notifier = Nop{}
)
