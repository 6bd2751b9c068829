package store

import (
	"context"
	"fmt"
	"sync"

	"signal-sessions/common"
	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/protocol/session"
)

// TrustPolicy decides whether key may be used for addr given what is already stored (nil if nothing).
type TrustPolicy func(addr session.Address, stored, key key_ed25519.PublicKey, direction session.Direction) bool

// TrustAll accepts every identity key.
func TrustAll(session.Address, key_ed25519.PublicKey, key_ed25519.PublicKey, session.Direction) bool {
	return true
}

// TrustOnFirstUse pins the first key seen for an address.
func TrustOnFirstUse(_ session.Address, stored, key key_ed25519.PublicKey, _ session.Direction) bool {
	return stored == nil || stored.Equals(key)
}

type IdentityStore struct {
	keyPair        key_ed25519.Pair
	registrationID uint32
	policy         TrustPolicy

	mu         sync.RWMutex
	identities map[session.Address]key_ed25519.PublicKey
}

func NewIdentityStore(keyPair key_ed25519.Pair, registrationID uint32, policy TrustPolicy) *IdentityStore {
	if policy == nil {
		policy = TrustAll
	}
	return &IdentityStore{
		keyPair:        keyPair.Clone(),
		registrationID: registrationID,
		policy:         policy,
		identities:     make(map[session.Address]key_ed25519.PublicKey),
	}
}

func (s *IdentityStore) GetIdentityKeyPair(context.Context) (key_ed25519.Pair, error) {
	return s.keyPair.Clone(), nil
}

func (s *IdentityStore) GetLocalRegistrationID(context.Context) (uint32, error) {
	return s.registrationID, nil
}

func (s *IdentityStore) SaveIdentity(_ context.Context, addr session.Address, key key_ed25519.PublicKey) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("%w: empty identity key", common.ErrBadInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.identities[addr]
	if ok && existing.Equals(key) {
		return false, nil
	}
	s.identities[addr] = key.Serialize()
	return true, nil
}

func (s *IdentityStore) IsTrustedIdentity(_ context.Context, addr session.Address, key key_ed25519.PublicKey, direction session.Direction) (bool, error) {
	s.mu.RLock()
	stored := s.identities[addr]
	s.mu.RUnlock()
	return s.policy(addr, stored, key, direction), nil
}

func (s *IdentityStore) GetIdentity(_ context.Context, addr session.Address) (key_ed25519.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.identities[addr]
	if !ok {
		return nil, fmt.Errorf("%w: identity for %s", common.ErrNotFound, addr)
	}
	return key.Serialize(), nil
}
