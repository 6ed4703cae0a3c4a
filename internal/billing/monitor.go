// Package billing runs one metered session per room: an immediate
// authorization tick on start, then one tick per interval, charging
// the payer through the tenant's webhook and tearing the call down
// when the webhook refuses further billing.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/media"
	"github.com/sugunalabs/callserver/internal/metrics"
)

const (
	EventDeduct = "DEDUCT_COINS"
	EventEnded  = "CALL_ENDED"
)

var ErrAlreadyMonitored = errors.New("billing: room already monitored")

// Request is the webhook body for both tick and final events.
type Request struct {
	Event      string `json:"event"`
	RoomID     string `json:"roomId"`
	UserID     string `json:"userId"`
	ReceiverID string `json:"receiverId,omitempty"`
	Amount     int    `json:"amount,omitempty"`
	Minutes    int    `json:"minutes"`
	IsInitial  bool   `json:"isInitial,omitempty"`
	CallType   string `json:"callType,omitempty"`
	Msg        string `json:"msg,omitempty"`
}

// Decision is the tenant backend's answer to a tick.
type Decision struct {
	Status string `json:"status"`
	Allow  *bool  `json:"allow"`
}

// Denied reports an explicit refusal. Only a successfully delivered
// response can deny; transport failures are handled separately.
func (d Decision) Denied() bool {
	if d.Status == "insufficient_funds" || d.Status == "not_allowed" {
		return true
	}
	return d.Allow != nil && !*d.Allow
}

// StartParams describes one metered session.
type StartParams struct {
	Room       domain.RoomID
	AppID      domain.AppID
	Payer      domain.Identity
	Receiver   domain.Identity
	Rate       int
	CallType   domain.CallType
	WebhookURL string
	Media      media.RoomAdmin
}

type session struct {
	StartParams
	elapsed  atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

// Options tune the monitor. FailOpen keeps a call alive when a tick
// fails at the transport level; this trades revenue protection for
// call availability and is the historical behavior.
type Options struct {
	Interval       time.Duration
	WebhookTimeout time.Duration
	FailOpen       bool
	// OnEnded fires once per session after it is removed, for call
	// history and any other bookkeeping.
	OnEnded func(appID domain.AppID, room domain.RoomID, elapsedMinutes int, forced bool)
}

type Monitor struct {
	opts     Options
	client   *http.Client
	sessions sync.Map // domain.RoomID -> *session
}

func NewMonitor(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.WebhookTimeout <= 0 {
		opts.WebhookTimeout = 10 * time.Second
	}
	return &Monitor{
		opts:   opts,
		client: &http.Client{Timeout: opts.WebhookTimeout},
	}
}

// Start registers the session and begins ticking. Starting a room
// that is already monitored is refused, never doubled.
func (m *Monitor) Start(p StartParams) error {
	if p.Media == nil {
		p.Media = media.Nop{}
	}
	s := &session{StartParams: p, stop: make(chan struct{})}
	if _, loaded := m.sessions.LoadOrStore(p.Room, s); loaded {
		log.Warn().Str("module", "billing").Str("room", string(p.Room)).Msg("already monitoring room")
		return ErrAlreadyMonitored
	}
	metrics.ActiveSessions.Inc()
	log.Info().
		Str("module", "billing").
		Str("room", string(p.Room)).
		Str("payer", string(p.Payer)).
		Int("rate", p.Rate).
		Msg("billing session started")
	go m.run(s)
	return nil
}

// Stop ends a session gracefully. It is idempotent: the second stop
// for a room is a no-op and produces no second CALL_ENDED.
func (m *Monitor) Stop(room domain.RoomID) bool {
	v, ok := m.sessions.Load(room)
	if !ok {
		return false
	}
	return m.finish(v.(*session), false)
}

// Elapsed returns the completed minute count of an active session.
func (m *Monitor) Elapsed(room domain.RoomID) (int, bool) {
	v, ok := m.sessions.Load(room)
	if !ok {
		return 0, false
	}
	return int(v.(*session).elapsed.Load()), true
}

func (m *Monitor) run(s *session) {
	// Initial tick at elapsed 0: call setup is charged even if the
	// call ends within the first interval.
	m.tick(s, true)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if !m.registered(s) {
				return
			}
			s.elapsed.Add(1)
			m.tick(s, false)
		}
	}
}

// registered guards a tick against acting for a room that has been
// stopped, or replaced by a newer session with the same id.
func (m *Monitor) registered(s *session) bool {
	cur, ok := m.sessions.Load(s.Room)
	return ok && cur == s
}

func (m *Monitor) tick(s *session, initial bool) {
	metrics.BillingTicks.Inc()
	elapsed := int(s.elapsed.Load())

	decision, err := m.post(s.WebhookURL, Request{
		Event:      EventDeduct,
		RoomID:     string(s.Room),
		UserID:     string(s.Payer),
		ReceiverID: string(s.Receiver),
		Amount:     s.Rate,
		Minutes:    elapsed,
		IsInitial:  initial,
		CallType:   string(s.CallType),
	})
	if err != nil {
		metrics.BillingTickErrors.Inc()
		if m.opts.FailOpen {
			// Transient network trouble must not drop a live call.
			log.Warn().Err(err).Str("module", "billing").Str("room", string(s.Room)).Msg("tick failed, continuing")
			return
		}
		log.Error().Err(err).Str("module", "billing").Str("room", string(s.Room)).Msg("tick failed, ending call")
		m.forceEnd(s)
		return
	}

	if decision.Denied() {
		log.Warn().Str("module", "billing").Str("room", string(s.Room)).Int("minutes", elapsed).Msg("billing refused, ending call")
		m.forceEnd(s)
	}
}

// forceEnd removes the session and evicts the room from the media
// engine. A stale tick whose session was already stopped does nothing.
func (m *Monitor) forceEnd(s *session) {
	if !m.finish(s, true) {
		return
	}
	metrics.ForcedTerminations.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.WebhookTimeout)
	defer cancel()
	if err := s.Media.DeleteRoom(ctx, s.Room); err != nil {
		log.Error().Err(err).Str("module", "billing").Str("room", string(s.Room)).Msg("media room delete failed")
	}
}

// finish removes exactly this session and sends the final CALL_ENDED
// notification with the accrued minute total. Elapsed is never
// extrapolated past the last completed tick.
func (m *Monitor) finish(s *session, forced bool) bool {
	if !m.sessions.CompareAndDelete(s.Room, s) {
		return false
	}
	s.stopOnce.Do(func() { close(s.stop) })
	metrics.ActiveSessions.Dec()

	elapsed := int(s.elapsed.Load())
	msg := "Call ended gracefully"
	if forced {
		msg = "Call ended: insufficient funds"
	}
	if _, err := m.post(s.WebhookURL, Request{
		Event:    EventEnded,
		RoomID:   string(s.Room),
		UserID:   string(s.Payer),
		Minutes:  elapsed,
		CallType: string(s.CallType),
		Msg:      msg,
	}); err != nil {
		log.Warn().Err(err).Str("module", "billing").Str("room", string(s.Room)).Msg("final webhook failed")
	}

	log.Info().Str("module", "billing").Str("room", string(s.Room)).Int("minutes", elapsed).Bool("forced", forced).Msg("billing session stopped")
	if m.opts.OnEnded != nil {
		m.opts.OnEnded(s.AppID, s.Room, elapsed, forced)
	}
	return true
}

func (m *Monitor) post(url string, body Request) (Decision, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Decision{}, err
	}
	resp, err := m.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return Decision{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Decision{}, fmt.Errorf("billing: webhook returned %d", resp.StatusCode)
	}
	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		// A success status with an unreadable body counts as allow;
		// only an explicit refusal ends the call.
		return Decision{}, nil
	}
	return decision, nil
}
