// Package match decides whether a call request may proceed and, for
// random calls, picks the callee. It never mutates presence and never
// starts billing; the coordinator owns the state transition.
package match

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/directory"
	"github.com/sugunalabs/callserver/internal/domain"
)

// Rejection is an eligibility failure. Reason is the short
// human-readable string sent back to the caller in call_failed.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

func reject(reason string) *Rejection { return &Rejection{Reason: reason} }

func insufficientCoins(callType domain.CallType) *Rejection {
	return reject(fmt.Sprintf("Insufficient Coins. Need %d.", domain.MinCoins(callType)))
}

func typeDisabled(callType domain.CallType) *Rejection {
	if callType == domain.CallVideo {
		return reject("Video calls disabled")
	}
	return reject("Audio calls disabled")
}

const (
	reasonNotRegistered = "User not registered for calls"
	reasonNotAccepting  = "User is not accepting calls"
	reasonBusy          = "User is currently busy"
	reasonNoMatch       = "No matching online users found."
)

type Engine struct {
	// intn is injectable so tests can pin the random pick.
	intn func(n int) int
}

func NewEngine() *Engine {
	return &Engine{intn: rand.Intn}
}

// NewEngineWithRand pins the candidate selection, for tests.
func NewEngineWithRand(intn func(n int) int) *Engine {
	return &Engine{intn: intn}
}

// DirectCall checks a call from caller to a chosen target. The checks
// run in a fixed order and the first failure is the rejection reason:
// balance, target registered, call-enabled, type flag, busy.
func (e *Engine) DirectCall(ctx context.Context, store directory.Store, caller, target domain.Identity, callType domain.CallType, callerCoins int) error {
	if callerCoins < domain.MinCoins(callType) {
		return insufficientCoins(callType)
	}

	rec, err := store.Presence(ctx, target)
	if err == directory.ErrNotFound {
		return reject(reasonNotRegistered)
	}
	if err != nil {
		return err
	}
	if !rec.CallEnabled {
		return reject(reasonNotAccepting)
	}
	if !rec.AllowsType(callType) {
		return typeDisabled(callType)
	}
	if rec.Busy {
		return reject(reasonBusy)
	}
	return nil
}

// RandomCall picks a uniformly random eligible callee for the caller.
// Candidates exclude the caller itself and anyone busy, call-disabled
// or lacking the type-specific flag; a language filter is a
// case-insensitive substring match against the candidate's declared
// language.
func (e *Engine) RandomCall(ctx context.Context, store directory.Store, caller domain.Identity, callType domain.CallType, callerCoins int, language string) (domain.Identity, error) {
	if callerCoins < domain.MinCoins(callType) {
		return "", insufficientCoins(callType)
	}

	all, err := store.ListPresence(ctx)
	if err != nil {
		return "", err
	}

	candidates := make([]domain.Identity, 0, len(all))
	for _, rec := range all {
		if rec.Identity == caller {
			continue
		}
		if !rec.CallEnabled || !rec.AllowsType(callType) || rec.Busy {
			continue
		}
		if language != "" && !strings.Contains(strings.ToLower(rec.Language), strings.ToLower(language)) {
			continue
		}
		candidates = append(candidates, rec.Identity)
	}

	if len(candidates) == 0 {
		return "", reject(reasonNoMatch)
	}

	picked := candidates[e.intn(len(candidates))]
	log.Debug().Str("module", "match").Str("caller", string(caller)).Str("target", string(picked)).Int("candidates", len(candidates)).Msg("random match")
	return picked, nil
}
