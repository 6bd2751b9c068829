package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"signal-sessions/common"
	"signal-sessions/protocol/session"
)

type SignedPreKeyStore struct {
	mu            sync.RWMutex
	signedPreKeys map[uint32]session.SignedPreKeyRecord
}

func NewSignedPreKeyStore() *SignedPreKeyStore {
	return &SignedPreKeyStore{signedPreKeys: make(map[uint32]session.SignedPreKeyRecord)}
}

func (s *SignedPreKeyStore) LoadSignedPreKey(_ context.Context, id uint32) (*session.SignedPreKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.signedPreKeys[id]
	if !ok {
		return nil, fmt.Errorf("%w: signed prekey %d", common.ErrNotFound, id)
	}
	rec.KeyPair = rec.KeyPair.Clone()
	rec.Signature = bytes.Clone(rec.Signature)
	return &rec, nil
}

func (s *SignedPreKeyStore) StoreSignedPreKey(_ context.Context, id uint32, record *session.SignedPreKeyRecord) error {
	rec := *record
	rec.KeyPair = record.KeyPair.Clone()
	rec.Signature = bytes.Clone(record.Signature)
	s.mu.Lock()
	s.signedPreKeys[id] = rec
	s.mu.Unlock()
	return nil
}

func (s *SignedPreKeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signedPreKeys)
}
