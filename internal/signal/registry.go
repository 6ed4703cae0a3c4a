package signal

import (
	"sync"

	"github.com/sugunalabs/callserver/internal/domain"
)

// Sender is one identity's live signaling channel. The websocket
// adapter implements it; tests use recording fakes.
type Sender interface {
	SendEvent(v any) error
}

type channelKey struct {
	App domain.AppID
	ID  domain.Identity
}

// ChannelRegistry maps identity to channel, scoped per tenant. Every
// operation is per-key: binds and unbinds for different identities
// never contend.
type ChannelRegistry struct {
	channels sync.Map // channelKey -> Sender
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{}
}

func (r *ChannelRegistry) Bind(app domain.AppID, id domain.Identity, s Sender) {
	r.channels.Store(channelKey{App: app, ID: id}, s)
}

// Unbind removes the mapping only while it still points at s, so a
// reconnect that has already replaced the channel is not torn down by
// the old connection's cleanup.
func (r *ChannelRegistry) Unbind(app domain.AppID, id domain.Identity, s Sender) {
	r.channels.CompareAndDelete(channelKey{App: app, ID: id}, s)
}

func (r *ChannelRegistry) Get(app domain.AppID, id domain.Identity) (Sender, bool) {
	v, ok := r.channels.Load(channelKey{App: app, ID: id})
	if !ok {
		return nil, false
	}
	return v.(Sender), true
}
