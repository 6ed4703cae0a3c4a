// Package media instructs the external media engine. The engine does
// all transport work itself; the coordinator only ever tells it to
// tear a room down or evict one participant.
package media

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/domain"
)

// RoomAdmin is the slice of the media engine's admin surface the
// coordinator needs.
type RoomAdmin interface {
	// DeleteRoom closes the room and evicts every participant.
	DeleteRoom(ctx context.Context, room domain.RoomID) error
	// RemoveParticipant evicts a single identity from the room.
	RemoveParticipant(ctx context.Context, room domain.RoomID, id domain.Identity) error
}

// Nop is used for tenants without a configured media endpoint; the
// calls are logged and succeed.
type Nop struct{}

func (Nop) DeleteRoom(ctx context.Context, room domain.RoomID) error {
	log.Debug().Str("module", "media").Str("room", string(room)).Msg("nop delete room")
	return nil
}

func (Nop) RemoveParticipant(ctx context.Context, room domain.RoomID, id domain.Identity) error {
	log.Debug().Str("module", "media").Str("room", string(room)).Str("identity", string(id)).Msg("nop remove participant")
	return nil
}
