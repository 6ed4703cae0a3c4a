// Package history keeps the per-call audit trail in the tenant's
// directory store. Every field is encrypted with the tenant cipher,
// and each record is mirrored under a global key and under both
// participants, matching what tenant apps already read.
package history

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/directory"
	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/tenant"
)

type Recorder struct {
	now func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// NewRecorderAt pins the clock, for tests.
func NewRecorderAt(now func() time.Time) *Recorder {
	return &Recorder{now: now}
}

// Begin writes the initial record when a call is requested. History
// failures are logged and swallowed; a missing audit row must not
// fail the call.
func (r *Recorder) Begin(ctx context.Context, t *tenant.Context, room *domain.Room) {
	enc := t.Cipher.Encrypt
	fields := map[string]string{
		"CallID":      enc(string(room.ID)),
		"CallerUid":   enc(string(room.Caller)),
		"ReceiverUid": enc(string(room.Callee)),
		"CallType":    enc(string(room.Type)),
		"Status":      enc("Calling"),
		"RequestTime": enc(r.millis()),
		"TotalCoins":  enc("0"),
	}
	r.writeAll(ctx, t, room, func(key string) error {
		return t.Store.SetRecord(ctx, key, fields)
	})
}

// Update moves the record to a new status. Answered stamps the answer
// time; terminal statuses stamp the end time and derive the duration
// from the answer time when one exists.
func (r *Recorder) Update(ctx context.Context, t *tenant.Context, room *domain.Room, status domain.CallStatus) {
	enc := t.Cipher.Encrypt
	now := r.millis()
	fields := map[string]string{
		"Status": enc(string(status)),
	}

	switch {
	case status == domain.StatusAnswered:
		fields["AnswerTime"] = enc(now)
		fields["StartTime"] = enc(now)
	case status.Terminal():
		fields["EndTime"] = enc(now)
		if answered, ok := r.answerTime(ctx, t, room.ID); ok {
			end, _ := strconv.ParseInt(now, 10, 64)
			duration := end - answered
			if duration < 0 {
				duration = 0
			}
			fields["Duration"] = enc(strconv.FormatInt(duration, 10))
		}
	}

	r.writeAll(ctx, t, room, func(key string) error {
		return t.Store.UpdateRecord(ctx, key, fields)
	})
}

func (r *Recorder) answerTime(ctx context.Context, t *tenant.Context, room domain.RoomID) (int64, bool) {
	rec, err := t.Store.GetRecord(ctx, directory.HistoryKey(room))
	if err != nil {
		return 0, false
	}
	raw, ok := t.Cipher.Decrypt(rec["AnswerTime"])
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

func (r *Recorder) writeAll(ctx context.Context, t *tenant.Context, room *domain.Room, write func(key string) error) {
	keys := []string{
		directory.HistoryKey(room.ID),
		directory.UserHistoryKey(room.Caller, room.ID),
		directory.UserHistoryKey(room.Callee, room.ID),
	}
	for _, key := range keys {
		if err := write(key); err != nil {
			log.Warn().Err(err).Str("module", "history").Str("key", key).Msg("history write failed")
		}
	}
}

func (r *Recorder) millis() string {
	return strconv.FormatInt(r.now().UnixMilli(), 10)
}
