// Package tenant isolates the per-application contexts. Every other
// component receives a Context rather than touching any global store,
// so tenants never see each other's keys, directory or webhooks.
package tenant

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/directory"
	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/fieldcipher"
	"github.com/sugunalabs/callserver/internal/media"
)

// ErrUnknownTenant is surfaced verbatim to callers: a request for an
// app id that is not configured fails closed and takes no action.
var ErrUnknownTenant = errors.New("Invalid App ID")

// Context is everything scoped to one application.
type Context struct {
	AppID      domain.AppID
	Name       string
	SigningKey []byte
	Cipher     *fieldcipher.Cipher
	Store      directory.Store
	// WebhookURL is the default billing endpoint; an accept_call may
	// override it per session.
	WebhookURL string
	Media      media.RoomAdmin
	// ServerURL is handed to clients in call_started so they know
	// which media engine to join.
	ServerURL string
	// WakeURL is the tenant's push gateway.
	WakeURL string
}

type Registry struct {
	mu      sync.RWMutex
	tenants map[domain.AppID]*Context
}

func NewRegistry() *Registry {
	return &Registry{tenants: make(map[domain.AppID]*Context)}
}

func (r *Registry) Add(tc *Context) {
	if tc.Media == nil {
		tc.Media = media.Nop{}
	}
	r.mu.Lock()
	r.tenants[tc.AppID] = tc
	r.mu.Unlock()
	log.Info().Str("module", "tenant").Str("app_id", string(tc.AppID)).Str("name", tc.Name).Msg("tenant loaded")
}

func (r *Registry) Get(appID domain.AppID) (*Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tc, ok := r.tenants[appID]
	if !ok {
		return nil, ErrUnknownTenant
	}
	return tc, nil
}

// Len reports the number of configured tenants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants)
}
