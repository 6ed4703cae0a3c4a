package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/domain"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, appID domain.AppID, id domain.Identity, c *wsChannel) {
	defer func() {
		log.Info().Str("module", "signal").Str("identity", string(id)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.dispatch(ctx, appID, id, c, data)
		}
	}
}

func (ctl *Controller) dispatch(ctx context.Context, appID domain.AppID, id domain.Identity, c *wsChannel, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "make_call":
		ctl.handleMakeCall(ctx, appID, id, c, data)
	case "random_call":
		ctl.handleRandomCall(ctx, appID, id, c, data)
	case "accept_call":
		ctl.handleAcceptCall(ctx, appID, id, c, data)
	case "cancel_call":
		ctl.handleCancelCall(ctx, appID, id, c, data)
	case "reject_call":
		ctl.handleRejectCall(ctx, appID, id, c, data)
	case "end_call":
		ctl.handleEndCall(ctx, appID, id, c, data)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func sendJSON(c *wsChannel, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return err
	}
	return c.TrySend(b)
}

func badPayload(c *wsChannel, err error) {
	log.Error().Err(err).Str("module", "signal").Msg("bad payload")
	_ = sendJSON(c, callFailed("Malformed request"))
}
