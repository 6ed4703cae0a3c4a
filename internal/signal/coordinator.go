package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/billing"
	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/history"
	"github.com/sugunalabs/callserver/internal/match"
	"github.com/sugunalabs/callserver/internal/metrics"
	"github.com/sugunalabs/callserver/internal/tenant"
	"github.com/sugunalabs/callserver/internal/token"
	"github.com/sugunalabs/callserver/internal/wake"
)

var (
	errCallNotActive = errors.New("call is no longer active")

	rejectTooManyAttempts = &match.Rejection{Reason: "Too many call attempts"}
)

// Coordinator owns the room lifecycle: it validates requests through
// the matching engine, flips busy flags, mints capability tokens on
// accept, drives the billing monitor, and fans events out to the
// participants' channels. Rooms are independent; the only shared
// structures are per-key maps.
type Coordinator struct {
	Tenants  *tenant.Registry
	Match    *match.Engine
	Billing  *billing.Monitor
	Wake     wake.Notifier
	History  *history.Recorder
	Channels *ChannelRegistry
	Limiter  *AttemptLimiter

	RoomTokenTTL time.Duration
	RingTimeout  time.Duration

	rooms sync.Map // domain.RoomID -> *callState
	now   func() time.Time
}

type callState struct {
	mu        sync.Mutex
	room      domain.Room
	ringTimer *time.Timer
}

type Deps struct {
	Tenants      *tenant.Registry
	Match        *match.Engine
	Billing      *billing.Monitor
	Wake         wake.Notifier
	History      *history.Recorder
	Limiter      *AttemptLimiter
	RoomTokenTTL time.Duration
	RingTimeout  time.Duration
}

func NewCoordinator(d Deps) *Coordinator {
	c := &Coordinator{
		Tenants:      d.Tenants,
		Match:        d.Match,
		Billing:      d.Billing,
		Wake:         d.Wake,
		History:      d.History,
		Channels:     NewChannelRegistry(),
		Limiter:      d.Limiter,
		RoomTokenTTL: d.RoomTokenTTL,
		RingTimeout:  d.RingTimeout,
		now:          time.Now,
	}
	if c.Wake == nil {
		c.Wake = wake.Nop{}
	}
	if c.History == nil {
		c.History = history.NewRecorder()
	}
	if c.RoomTokenTTL <= 0 {
		c.RoomTokenTTL = 24 * time.Hour
	}
	return c
}

// CallRequest is a caller's wish for a session.
type CallRequest struct {
	Caller      domain.Identity
	Target      domain.Identity // direct calls only
	Type        domain.CallType
	Coins       int
	CallerName  string
	CallerImage string
	Language    string // random calls only
}

// RequestCall runs a direct call request end to end: eligibility,
// busy flags, ringing, wake push. The matching engine only judges;
// every state change happens here.
func (c *Coordinator) RequestCall(ctx context.Context, appID domain.AppID, req CallRequest) (*domain.Room, error) {
	tc, err := c.Tenants.Get(appID)
	if err != nil {
		return nil, err
	}
	if err := c.allowAttempt(ctx, tc, req.Caller); err != nil {
		return nil, err
	}

	coins := c.resolveCoins(ctx, tc, req.Caller, req.Coins)
	if err := c.Match.DirectCall(ctx, tc.Store, req.Caller, req.Target, req.Type, coins); err != nil {
		metrics.CallRequests.WithLabelValues("direct", "rejected").Inc()
		return nil, err
	}

	metrics.CallRequests.WithLabelValues("direct", "accepted").Inc()
	return c.begin(ctx, tc, req, req.Target)
}

// RequestRandomCall is RequestCall with the callee picked by the
// matching engine.
func (c *Coordinator) RequestRandomCall(ctx context.Context, appID domain.AppID, req CallRequest) (*domain.Room, error) {
	tc, err := c.Tenants.Get(appID)
	if err != nil {
		return nil, err
	}
	if err := c.allowAttempt(ctx, tc, req.Caller); err != nil {
		return nil, err
	}

	coins := c.resolveCoins(ctx, tc, req.Caller, req.Coins)
	target, err := c.Match.RandomCall(ctx, tc.Store, req.Caller, req.Type, coins, req.Language)
	if err != nil {
		metrics.CallRequests.WithLabelValues("random", "rejected").Inc()
		return nil, err
	}

	metrics.CallRequests.WithLabelValues("random", "accepted").Inc()
	return c.begin(ctx, tc, req, target)
}

func (c *Coordinator) begin(ctx context.Context, tc *tenant.Context, req CallRequest, target domain.Identity) (*domain.Room, error) {
	c.setBusy(ctx, tc, true, req.Caller, target)

	room := domain.Room{
		ID:          domain.NewRoomID(req.Caller, c.now()),
		AppID:       tc.AppID,
		Caller:      req.Caller,
		Callee:      target,
		Type:        req.Type,
		Status:      domain.StatusRinging,
		RequestedAt: c.now(),
	}
	state := &callState{room: room}
	if c.RingTimeout > 0 {
		roomID := room.ID
		state.ringTimer = time.AfterFunc(c.RingTimeout, func() { c.ringTimedOut(tc.AppID, roomID) })
	}
	c.rooms.Store(room.ID, state)

	c.History.Begin(ctx, tc, &room)

	// The callee's channel may not be connected (app backgrounded);
	// the wake push is sent unconditionally to cover that case.
	if ch, ok := c.Channels.Get(tc.AppID, target); ok {
		_ = ch.SendEvent(incomingCall(&room, req.CallerName, req.CallerImage))
	}
	c.Wake.IncomingCall(tc, target, wake.CallPush{
		Sender:      req.Caller,
		SenderName:  req.CallerName,
		SenderImage: req.CallerImage,
		CallType:    req.Type,
		Room:        room.ID,
	})

	log.Info().
		Str("module", "signal").
		Str("app_id", string(tc.AppID)).
		Str("room", string(room.ID)).
		Str("caller", string(room.Caller)).
		Str("callee", string(room.Callee)).
		Str("call_type", string(room.Type)).
		Msg("call ringing")
	return &room, nil
}

// AcceptParams carries the callee's accept_call payload.
type AcceptParams struct {
	Callee      domain.Identity
	Caller      domain.Identity
	Type        domain.CallType
	RoomID      domain.RoomID
	WebhookURL  string
	PricePerMin int
}

// Accept transitions the room to Answered, mints one capability token
// per participant and starts the billing monitor. The monitor is
// running before either token is handed out.
func (c *Coordinator) Accept(ctx context.Context, appID domain.AppID, p AcceptParams) error {
	tc, err := c.Tenants.Get(appID)
	if err != nil {
		return err
	}

	state := c.resolveState(tc, p)
	state.mu.Lock()
	if state.room.Status.Terminal() || state.room.Status == domain.StatusAnswered {
		state.mu.Unlock()
		return errCallNotActive
	}
	state.room.Status = domain.StatusAnswered
	if state.ringTimer != nil {
		state.ringTimer.Stop()
	}
	room := state.room
	state.mu.Unlock()

	// The accept may arrive through a wake push before the busy write
	// from the request landed; re-assert both flags.
	c.setBusy(ctx, tc, true, room.Caller, room.Callee)
	c.History.Update(ctx, tc, &room, domain.StatusAnswered)

	webhook := p.WebhookURL
	if webhook == "" {
		webhook = tc.WebhookURL
	}
	if webhook != "" {
		err := c.Billing.Start(billing.StartParams{
			Room:       room.ID,
			AppID:      tc.AppID,
			Payer:      room.Caller,
			Receiver:   room.Callee,
			Rate:       p.PricePerMin,
			CallType:   room.Type,
			WebhookURL: webhook,
			Media:      tc.Media,
		})
		if err != nil && err != billing.ErrAlreadyMonitored {
			return err
		}
	}

	// Both tokens are minted before either is delivered: a signing
	// failure must not leave one side already joining the room.
	participants := []domain.Identity{room.Caller, room.Callee}
	tokens := make(map[domain.Identity]string, len(participants))
	for _, id := range participants {
		signed, err := token.Issue(tc.SigningKey, tc.AppID, room.ID, id, domain.RoleHost, c.RoomTokenTTL)
		if err != nil {
			return err
		}
		tokens[id] = signed
	}
	for _, id := range participants {
		if ch, ok := c.Channels.Get(tc.AppID, id); ok {
			_ = ch.SendEvent(CallStarted{
				Type:      "call_started",
				Token:     tokens[id],
				RoomName:  string(room.ID),
				ServerURL: tc.ServerURL,
			})
		}
	}

	log.Info().Str("module", "signal").Str("room", string(room.ID)).Msg("call answered")
	return nil
}

// resolveState finds the ringing room, or reconstructs it from the
// accept payload when the request predates this process (the callee
// may have been reached only through the wake push).
func (c *Coordinator) resolveState(tc *tenant.Context, p AcceptParams) *callState {
	if p.RoomID != "" {
		if v, ok := c.rooms.Load(p.RoomID); ok {
			return v.(*callState)
		}
	}
	roomID := p.RoomID
	if roomID == "" {
		roomID = domain.NewRoomID(p.Caller, c.now())
	}
	state := &callState{room: domain.Room{
		ID:          roomID,
		AppID:       tc.AppID,
		Caller:      p.Caller,
		Callee:      p.Callee,
		Type:        p.Type,
		Status:      domain.StatusRinging,
		RequestedAt: c.now(),
	}}
	if v, loaded := c.rooms.LoadOrStore(roomID, state); loaded {
		return v.(*callState)
	}
	return state
}

// Cancel is the caller aborting before an answer. Once the call is
// answered only End tears it down.
func (c *Coordinator) Cancel(ctx context.Context, appID domain.AppID, caller, target domain.Identity, roomID domain.RoomID) error {
	tc, err := c.Tenants.Get(appID)
	if err != nil {
		return err
	}
	if _, finished := c.finishRoom(ctx, tc, roomID, domain.StatusCancelled, caller, target); !finished {
		if _, tracked := c.rooms.Load(roomID); tracked {
			return errCallNotActive
		}
	}
	if ch, ok := c.Channels.Get(appID, target); ok {
		_ = ch.SendEvent(CallCancelled{Type: "call_cancelled", RoomID: string(roomID)})
	}
	c.Wake.CancelCall(tc, target, roomID)
	return nil
}

// Reject is the callee declining. Like Cancel it only applies while
// the call is still ringing.
func (c *Coordinator) Reject(ctx context.Context, appID domain.AppID, callee, caller domain.Identity, roomID domain.RoomID) error {
	tc, err := c.Tenants.Get(appID)
	if err != nil {
		return err
	}
	if _, finished := c.finishRoom(ctx, tc, roomID, domain.StatusRejected, callee, caller); !finished {
		if _, tracked := c.rooms.Load(roomID); tracked {
			return errCallNotActive
		}
	}
	if ch, ok := c.Channels.Get(appID, caller); ok {
		_ = ch.SendEvent(CallRejected{Type: "call_rejected", RoomID: string(roomID)})
	}
	return nil
}

// End terminates an answered call. finishRoom stops the billing
// session, and stopping twice is a no-op, so End is safe to call from
// either side.
func (c *Coordinator) End(ctx context.Context, appID domain.AppID, ender domain.Identity, roomID domain.RoomID) error {
	tc, err := c.Tenants.Get(appID)
	if err != nil {
		return err
	}
	room, ok := c.finishRoom(ctx, tc, roomID, domain.StatusEnded)
	if !ok {
		// Unknown room: still make sure the ender is not left busy.
		c.setBusy(ctx, tc, false, ender)
		return nil
	}
	peer := room.Other(ender)
	if ch, ok := c.Channels.Get(appID, peer); ok {
		_ = ch.SendEvent(CallEnded{Type: "call_ended", RoomName: string(roomID)})
	}
	return nil
}

// Disconnect clears the identity's busy flag and drops its channel.
// It deliberately does not end the peer's room: the media engine's
// participant-left event drives that on the other side.
func (c *Coordinator) Disconnect(ctx context.Context, appID domain.AppID, id domain.Identity, s Sender) {
	c.Channels.Unbind(appID, id, s)
	tc, err := c.Tenants.Get(appID)
	if err != nil {
		return
	}
	c.setBusy(ctx, tc, false, id)
	log.Info().Str("module", "signal").Str("app_id", string(appID)).Str("identity", string(id)).Msg("disconnected")
}

// OnBillingEnded is wired as the billing monitor's OnEnded callback.
// Forced terminations never pass through End, so terminal cleanup --
// busy flags, history, room removal -- happens here.
func (c *Coordinator) OnBillingEnded(appID domain.AppID, roomID domain.RoomID, elapsedMinutes int, forced bool) {
	if !forced {
		return
	}
	tc, err := c.Tenants.Get(appID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	room, ok := c.finishRoom(ctx, tc, roomID, domain.StatusEnded)
	if !ok {
		return
	}
	for _, id := range []domain.Identity{room.Caller, room.Callee} {
		if ch, chOk := c.Channels.Get(appID, id); chOk {
			_ = ch.SendEvent(CallEnded{Type: "call_ended", RoomName: string(roomID)})
		}
	}
	log.Warn().Str("module", "signal").Str("room", string(roomID)).Int("minutes", elapsedMinutes).Msg("call cut off by billing")
}

func (c *Coordinator) ringTimedOut(appID domain.AppID, roomID domain.RoomID) {
	tc, err := c.Tenants.Get(appID)
	if err != nil {
		return
	}
	v, ok := c.rooms.Load(roomID)
	if !ok {
		return
	}
	state := v.(*callState)
	state.mu.Lock()
	stillRinging := state.room.Status == domain.StatusRinging
	room := state.room
	state.mu.Unlock()
	if !stillRinging {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// An accept may land between the status check above and here;
	// finishRoom refuses the transition in that case.
	if _, finished := c.finishRoom(ctx, tc, roomID, domain.StatusMissed); !finished {
		return
	}

	if ch, ok := c.Channels.Get(appID, room.Caller); ok {
		_ = ch.SendEvent(callFailed("No Answer"))
	}
	if ch, ok := c.Channels.Get(appID, room.Callee); ok {
		_ = ch.SendEvent(CallCancelled{Type: "call_cancelled", RoomID: string(roomID)})
	}
	c.Wake.CancelCall(tc, room.Callee, roomID)
	log.Info().Str("module", "signal").Str("room", string(roomID)).Msg("call timed out unanswered")
}

// finishRoom removes the room, stops its billing session, records the
// terminal status, and clears the busy flags of its participants (or
// of the explicitly given identities when the room was never tracked).
// An answered room only finishes through Ended: a cancel, reject or
// ring timeout landing after the answer is refused, so a live session
// can never be torn down sideways while its billing keeps running.
func (c *Coordinator) finishRoom(ctx context.Context, tc *tenant.Context, roomID domain.RoomID, status domain.CallStatus, fallback ...domain.Identity) (*domain.Room, bool) {
	v, ok := c.rooms.Load(roomID)
	if !ok {
		if c.Billing != nil {
			c.Billing.Stop(roomID)
		}
		c.setBusy(ctx, tc, false, fallback...)
		if len(fallback) > 0 {
			room := domain.Room{ID: roomID, AppID: tc.AppID, Caller: fallback[0], Status: status}
			if len(fallback) > 1 {
				room.Callee = fallback[1]
			}
			c.History.Update(ctx, tc, &room, status)
		}
		return nil, false
	}
	state := v.(*callState)
	state.mu.Lock()
	cur := state.room.Status
	if cur.Terminal() || (cur == domain.StatusAnswered && status != domain.StatusEnded) {
		state.mu.Unlock()
		return nil, false
	}
	if state.ringTimer != nil {
		state.ringTimer.Stop()
	}
	state.room.Status = status
	room := state.room
	state.mu.Unlock()
	c.rooms.Delete(roomID)

	if c.Billing != nil {
		c.Billing.Stop(roomID)
	}
	c.setBusy(ctx, tc, false, room.Caller, room.Callee)
	c.History.Update(ctx, tc, &room, status)
	log.Info().Str("module", "signal").Str("room", string(roomID)).Str("status", string(status)).Msg("room closed")
	return &room, true
}

func (c *Coordinator) allowAttempt(ctx context.Context, tc *tenant.Context, id domain.Identity) error {
	if c.Limiter == nil {
		return nil
	}
	if c.Limiter.Allow(tc.AppID, id) {
		return nil
	}
	if err := tc.Store.AppendViolation(ctx, id, "call_rate_limit "+c.now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("identity", string(id)).Msg("violation append failed")
	}
	return rejectTooManyAttempts
}

// resolveCoins prefers the balance reported by the client and falls
// back to the wallet when the payload omits it.
func (c *Coordinator) resolveCoins(ctx context.Context, tc *tenant.Context, id domain.Identity, reported int) int {
	if reported > 0 {
		return reported
	}
	coins, err := tc.Store.CoinBalance(ctx, id)
	if err != nil {
		return 0
	}
	return coins
}

func (c *Coordinator) setBusy(ctx context.Context, tc *tenant.Context, busy bool, ids ...domain.Identity) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := tc.Store.SetBusy(ctx, id, busy); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("identity", string(id)).Bool("busy", busy).Msg("busy flag write failed")
		}
	}
}
