package store

import (
	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/protocol/session"
)

// Stores groups the five stores owned by one user.
type Stores struct {
	Sessions      *SessionStore
	Identities    *IdentityStore
	PreKeys       *PreKeyStore
	SignedPreKeys *SignedPreKeyStore
	KyberPreKeys  *KyberPreKeyStore
}

func New(identity key_ed25519.Pair, registrationID uint32, policy TrustPolicy) *Stores {
	return &Stores{
		Sessions:      NewSessionStore(),
		Identities:    NewIdentityStore(identity, registrationID, policy),
		PreKeys:       NewPreKeyStore(),
		SignedPreKeys: NewSignedPreKeyStore(),
		KyberPreKeys:  NewKyberPreKeyStore(),
	}
}

var (
	_ session.SessionStore      = (*SessionStore)(nil)
	_ session.IdentityKeyStore  = (*IdentityStore)(nil)
	_ session.PreKeyStore       = (*PreKeyStore)(nil)
	_ session.SignedPreKeyStore = (*SignedPreKeyStore)(nil)
	_ session.KyberPreKeyStore  = (*KyberPreKeyStore)(nil)
)
