package directory

import (
	"context"
	"sync"

	"github.com/sugunalabs/callserver/internal/domain"
)

// MemoryStore is a threadsafe in-memory Store. It backs tests and
// single-node development runs where no redis is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	presence   map[domain.Identity]*domain.PresenceRecord
	balances   map[domain.Identity]int
	wakeTokens map[domain.Identity]string
	violations map[domain.Identity][]string
	records    map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		presence:   make(map[domain.Identity]*domain.PresenceRecord),
		balances:   make(map[domain.Identity]int),
		wakeTokens: make(map[domain.Identity]string),
		violations: make(map[domain.Identity][]string),
		records:    make(map[string]map[string]string),
	}
}

// PutPresence seeds or replaces a presence record.
func (s *MemoryStore) PutPresence(rec domain.PresenceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := rec
	s.presence[rec.Identity] = &copied
}

func (s *MemoryStore) SetBalance(id domain.Identity, coins int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[id] = coins
}

func (s *MemoryStore) SetWakeToken(id domain.Identity, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wakeTokens[id] = token
}

func (s *MemoryStore) Presence(ctx context.Context, id domain.Identity) (*domain.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.presence[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) ListPresence(ctx context.Context) ([]domain.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PresenceRecord, 0, len(s.presence))
	for _, rec := range s.presence {
		out = append(out, *rec)
	}
	return out, nil
}

func (s *MemoryStore) SetBusy(ctx context.Context, id domain.Identity, busy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.presence[id]; ok {
		rec.Busy = busy
	}
	return nil
}

func (s *MemoryStore) CoinBalance(ctx context.Context, id domain.Identity) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coins, ok := s.balances[id]
	if !ok {
		return 0, ErrNotFound
	}
	return coins, nil
}

func (s *MemoryStore) WakeToken(ctx context.Context, id domain.Identity) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.wakeTokens[id]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

func (s *MemoryStore) AppendViolation(ctx context.Context, id domain.Identity, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations[id] = append(s.violations[id], entry)
	return nil
}

// Violations returns the recorded strikes for an identity.
func (s *MemoryStore) Violations(id domain.Identity) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.violations[id]...)
}

func (s *MemoryStore) SetRecord(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.records[key] = copied
	return nil
}

func (s *MemoryStore) UpdateRecord(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		rec = make(map[string]string, len(fields))
		s.records[key] = rec
	}
	for k, v := range fields {
		rec[k] = v
	}
	return nil
}

func (s *MemoryStore) GetRecord(ctx context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make(map[string]string, len(rec))
	for k, v := range rec {
		copied[k] = v
	}
	return copied, nil
}

var _ Store = (*MemoryStore)(nil)
