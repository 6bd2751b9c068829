package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"signal-sessions/common"
	"signal-sessions/protocol/session"
)

// KyberPreKeyStore records consumption instead of deleting, see MarkKyberPreKeyUsed.
type KyberPreKeyStore struct {
	mu     sync.RWMutex
	keys   map[uint32]session.KyberPreKeyRecord
	usedAt map[uint32]time.Time
	now    func() time.Time
}

func NewKyberPreKeyStore() *KyberPreKeyStore {
	return &KyberPreKeyStore{
		keys:   make(map[uint32]session.KyberPreKeyRecord),
		usedAt: make(map[uint32]time.Time),
		now:    time.Now,
	}
}

func (s *KyberPreKeyStore) LoadKyberPreKey(_ context.Context, id uint32) (*session.KyberPreKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: kyber prekey %d", common.ErrNotFound, id)
	}
	rec.KeyPair = rec.KeyPair.Clone()
	rec.Signature = bytes.Clone(rec.Signature)
	return &rec, nil
}

func (s *KyberPreKeyStore) StoreKyberPreKey(_ context.Context, id uint32, record *session.KyberPreKeyRecord) error {
	rec := *record
	rec.KeyPair = record.KeyPair.Clone()
	rec.Signature = bytes.Clone(record.Signature)
	s.mu.Lock()
	s.keys[id] = rec
	s.mu.Unlock()
	return nil
}

// MarkKyberPreKeyUsed keeps the key loadable and records when it was consumed.
func (s *KyberPreKeyStore) MarkKyberPreKeyUsed(_ context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[id]; !ok {
		return fmt.Errorf("%w: kyber prekey %d", common.ErrNotFound, id)
	}
	s.usedAt[id] = s.now()
	return nil
}

func (s *KyberPreKeyStore) IsUsed(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.usedAt[id]
	return ok
}

func (s *KyberPreKeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
