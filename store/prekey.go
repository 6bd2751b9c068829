package store

import (
	"context"
	"fmt"
	"sync"

	"signal-sessions/common"
	"signal-sessions/protocol/session"
)

type PreKeyStore struct {
	mu      sync.RWMutex
	preKeys map[uint32]session.PreKeyRecord
}

func NewPreKeyStore() *PreKeyStore {
	return &PreKeyStore{preKeys: make(map[uint32]session.PreKeyRecord)}
}

func (s *PreKeyStore) LoadPreKey(_ context.Context, id uint32) (*session.PreKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.preKeys[id]
	if !ok {
		return nil, fmt.Errorf("%w: prekey %d", common.ErrNotFound, id)
	}
	rec.KeyPair = rec.KeyPair.Clone()
	return &rec, nil
}

func (s *PreKeyStore) StorePreKey(_ context.Context, id uint32, record *session.PreKeyRecord) error {
	rec := *record
	rec.KeyPair = record.KeyPair.Clone()
	s.mu.Lock()
	s.preKeys[id] = rec
	s.mu.Unlock()
	return nil
}

// RemovePreKey is a no-op for unknown ids.
func (s *PreKeyStore) RemovePreKey(_ context.Context, id uint32) error {
	s.mu.Lock()
	delete(s.preKeys, id)
	s.mu.Unlock()
	return nil
}

func (s *PreKeyStore) ContainsPreKey(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.preKeys[id]
	return ok
}

func (s *PreKeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.preKeys)
}
