package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sugunalabs/callserver/internal/domain"
)

type webhookRecorder struct {
	mu       sync.Mutex
	requests []Request
	respond  func(Request) (int, Decision)
}

func newWebhookRecorder() *webhookRecorder {
	return &webhookRecorder{
		respond: func(Request) (int, Decision) {
			return http.StatusOK, Decision{Status: "ok"}
		},
	}
}

func (w *webhookRecorder) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		w.mu.Lock()
		w.requests = append(w.requests, req)
		respond := w.respond
		w.mu.Unlock()

		status, decision := respond(req)
		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(decision)
	}
}

func (w *webhookRecorder) snapshot() []Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Request(nil), w.requests...)
}

func (w *webhookRecorder) countEvent(event string) int {
	n := 0
	for _, req := range w.snapshot() {
		if req.Event == event {
			n++
		}
	}
	return n
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type fakeMedia struct {
	deleted atomic.Int32
}

func (f *fakeMedia) DeleteRoom(ctx context.Context, room domain.RoomID) error {
	f.deleted.Add(1)
	return nil
}

func (f *fakeMedia) RemoveParticipant(ctx context.Context, room domain.RoomID, id domain.Identity) error {
	return nil
}

func startParams(room domain.RoomID, url string, m *fakeMedia) StartParams {
	return StartParams{
		Room:       room,
		AppID:      "friendzone_001",
		Payer:      "caller",
		Receiver:   "callee",
		Rate:       120,
		CallType:   domain.CallAudio,
		WebhookURL: url,
		Media:      m,
	}
}

func TestInitialTickThenIncrements(t *testing.T) {
	rec := newWebhookRecorder()
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	monitor := NewMonitor(Options{Interval: 20 * time.Millisecond, WebhookTimeout: time.Second, FailOpen: true})
	if err := monitor.Start(startParams("room_a", srv.URL, &fakeMedia{})); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer monitor.Stop("room_a")

	waitFor(t, 2*time.Second, func() bool { return rec.countEvent(EventDeduct) >= 3 })

	ticks := make([]Request, 0, 3)
	for _, req := range rec.snapshot() {
		if req.Event == EventDeduct {
			ticks = append(ticks, req)
		}
	}

	first := ticks[0]
	if !first.IsInitial {
		t.Error("first tick not flagged initial")
	}
	if first.Minutes != 0 {
		t.Errorf("first tick minutes: got %d, want 0", first.Minutes)
	}
	if first.Amount != 120 {
		t.Errorf("first tick amount: got %d, want 120", first.Amount)
	}
	if first.UserID != "caller" || first.ReceiverID != "callee" {
		t.Errorf("tick participants: got %q -> %q", first.UserID, first.ReceiverID)
	}

	for i, tick := range ticks[1:] {
		if tick.IsInitial {
			t.Errorf("tick %d flagged initial", i+1)
		}
		if tick.Minutes != i+1 {
			t.Errorf("tick %d minutes: got %d, want %d", i+1, tick.Minutes, i+1)
		}
	}
}

func TestDoubleStartRefused(t *testing.T) {
	rec := newWebhookRecorder()
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	monitor := NewMonitor(Options{Interval: time.Hour, WebhookTimeout: time.Second, FailOpen: true})
	if err := monitor.Start(startParams("room_b", srv.URL, &fakeMedia{})); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer monitor.Stop("room_b")

	if err := monitor.Start(startParams("room_b", srv.URL, &fakeMedia{})); err != ErrAlreadyMonitored {
		t.Errorf("second Start: got %v, want ErrAlreadyMonitored", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rec := newWebhookRecorder()
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	monitor := NewMonitor(Options{Interval: time.Hour, WebhookTimeout: time.Second, FailOpen: true})
	if err := monitor.Start(startParams("room_c", srv.URL, &fakeMedia{})); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return rec.countEvent(EventDeduct) == 1 })

	if !monitor.Stop("room_c") {
		t.Error("first Stop reported no session")
	}
	if monitor.Stop("room_c") {
		t.Error("second Stop reported a session")
	}
	if got := rec.countEvent(EventEnded); got != 1 {
		t.Errorf("CALL_ENDED count: got %d, want exactly 1", got)
	}
	if _, ok := monitor.Elapsed("room_c"); ok {
		t.Error("session still registered after Stop")
	}
}

func TestInsufficientFundsForcesTermination(t *testing.T) {
	rec := newWebhookRecorder()
	var disallow atomic.Bool
	rec.respond = func(req Request) (int, Decision) {
		if req.Event == EventDeduct && disallow.Load() {
			allow := false
			return http.StatusOK, Decision{Status: "insufficient_funds", Allow: &allow}
		}
		return http.StatusOK, Decision{Status: "ok"}
	}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	media := &fakeMedia{}
	monitor := NewMonitor(Options{Interval: 20 * time.Millisecond, WebhookTimeout: time.Second, FailOpen: true})
	if err := monitor.Start(startParams("room_d", srv.URL, media)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return rec.countEvent(EventDeduct) >= 1 })

	disallow.Store(true)

	waitFor(t, 2*time.Second, func() bool { return rec.countEvent(EventEnded) == 1 })
	waitFor(t, time.Second, func() bool { return media.deleted.Load() == 1 })

	if _, ok := monitor.Elapsed("room_d"); ok {
		t.Error("session still registered after forced termination")
	}
	// Cutoff minutes are whatever had accrued, never extrapolated.
	var ended Request
	for _, req := range rec.snapshot() {
		if req.Event == EventEnded {
			ended = req
		}
	}
	lastTick := 0
	for _, req := range rec.snapshot() {
		if req.Event == EventDeduct {
			lastTick = req.Minutes
		}
	}
	if ended.Minutes != lastTick {
		t.Errorf("final minutes: got %d, want %d", ended.Minutes, lastTick)
	}
}

func TestTransportFailureFailsOpen(t *testing.T) {
	rec := newWebhookRecorder()
	rec.respond = func(req Request) (int, Decision) {
		return http.StatusBadGateway, Decision{}
	}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	monitor := NewMonitor(Options{Interval: 20 * time.Millisecond, WebhookTimeout: time.Second, FailOpen: true})
	if err := monitor.Start(startParams("room_e", srv.URL, &fakeMedia{})); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer monitor.Stop("room_e")

	waitFor(t, 2*time.Second, func() bool { return rec.countEvent(EventDeduct) >= 3 })
	if _, ok := monitor.Elapsed("room_e"); !ok {
		t.Error("fail-open monitor dropped the session on transport failure")
	}
}

func TestTransportFailureFailsClosedWhenConfigured(t *testing.T) {
	rec := newWebhookRecorder()
	rec.respond = func(req Request) (int, Decision) {
		if req.Event == EventDeduct {
			return http.StatusBadGateway, Decision{}
		}
		return http.StatusOK, Decision{}
	}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	media := &fakeMedia{}
	monitor := NewMonitor(Options{Interval: 20 * time.Millisecond, WebhookTimeout: time.Second, FailOpen: false})
	if err := monitor.Start(startParams("room_f", srv.URL, media)); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, ok := monitor.Elapsed("room_f")
		return !ok
	})
	waitFor(t, time.Second, func() bool { return media.deleted.Load() == 1 })
}

func TestOnEndedCallback(t *testing.T) {
	rec := newWebhookRecorder()
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	var endedRoom atomic.Value
	monitor := NewMonitor(Options{
		Interval:       time.Hour,
		WebhookTimeout: time.Second,
		FailOpen:       true,
		OnEnded: func(appID domain.AppID, room domain.RoomID, elapsed int, forced bool) {
			endedRoom.Store(room)
		},
	})
	if err := monitor.Start(startParams("room_g", srv.URL, &fakeMedia{})); err != nil {
		t.Fatalf("Start: %v", err)
	}
	monitor.Stop("room_g")

	if got, _ := endedRoom.Load().(domain.RoomID); got != "room_g" {
		t.Errorf("OnEnded room: got %q, want %q", got, "room_g")
	}
}
