// Package directory is the narrow read/update interface onto a
// tenant's user store. The store itself is external; this package
// only adapts it. Presence capability flags, wallet balances and
// wake tokens are stored field-encrypted by the tenant's apps, so
// both adapters decode through the tenant's field cipher.
package directory

import (
	"context"
	"errors"

	"github.com/sugunalabs/callserver/internal/domain"
)

var ErrNotFound = errors.New("directory: not found")

// Store is an opaque key/value namespace with read, update and
// push-append operations plus typed views over the calling data.
type Store interface {
	// Presence returns the calling capability record for one identity.
	Presence(ctx context.Context, id domain.Identity) (*domain.PresenceRecord, error)
	// ListPresence returns every presence record of the tenant.
	ListPresence(ctx context.Context) ([]domain.PresenceRecord, error)
	// SetBusy flips the busy flag. The write is idempotent; the last
	// writer for an identity reflects the transition it caused.
	SetBusy(ctx context.Context, id domain.Identity, busy bool) error

	// CoinBalance is the payer's total spendable coins.
	CoinBalance(ctx context.Context, id domain.Identity) (int, error)
	// WakeToken returns the decrypted push token for an identity.
	WakeToken(ctx context.Context, id domain.Identity) (string, error)
	// AppendViolation push-appends one strike entry for an identity.
	AppendViolation(ctx context.Context, id domain.Identity, entry string) error

	// Raw record access, used for call-history writes.
	SetRecord(ctx context.Context, key string, fields map[string]string) error
	UpdateRecord(ctx context.Context, key string, fields map[string]string) error
	GetRecord(ctx context.Context, key string) (map[string]string, error)
}
