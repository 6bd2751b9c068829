package store

import (
	"context"
	"sync"

	"signal-sessions/protocol/session"
)

// SessionStore keeps serialized records so callers never share ratchet state.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[session.Address][]byte
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[session.Address][]byte)}
}

func (s *SessionStore) LoadSession(_ context.Context, addr session.Address) (*session.SessionRecord, error) {
	s.mu.RLock()
	raw, ok := s.sessions[addr]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return session.DeserializeSessionRecord(raw)
}

func (s *SessionStore) StoreSession(_ context.Context, addr session.Address, record *session.SessionRecord) error {
	raw, err := record.Serialize()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[addr] = raw
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) DeleteSession(_ context.Context, addr session.Address) {
	s.mu.Lock()
	delete(s.sessions, addr)
	s.mu.Unlock()
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
