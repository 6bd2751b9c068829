package session

import (
	"context"

	"signal-sessions/crypto/key_ed25519"
)

type Direction int

const (
	DirectionSending Direction = iota
	DirectionReceiving
)

func (d Direction) String() string {
	if d == DirectionSending {
		return "sending"
	}
	return "receiving"
}

// SessionStore returns a nil record without error when nothing is stored for the address.
type SessionStore interface {
	LoadSession(ctx context.Context, addr Address) (*SessionRecord, error)
	StoreSession(ctx context.Context, addr Address, record *SessionRecord) error
}

type IdentityKeyStore interface {
	GetIdentityKeyPair(ctx context.Context) (key_ed25519.Pair, error)
	GetLocalRegistrationID(ctx context.Context) (uint32, error)
	// SaveIdentity reports whether the stored key for addr changed (true on first save).
	SaveIdentity(ctx context.Context, addr Address, key key_ed25519.PublicKey) (bool, error)
	IsTrustedIdentity(ctx context.Context, addr Address, key key_ed25519.PublicKey, direction Direction) (bool, error)
	GetIdentity(ctx context.Context, addr Address) (key_ed25519.PublicKey, error)
}

type PreKeyStore interface {
	LoadPreKey(ctx context.Context, id uint32) (*PreKeyRecord, error)
	StorePreKey(ctx context.Context, id uint32, record *PreKeyRecord) error
	RemovePreKey(ctx context.Context, id uint32) error
}

type SignedPreKeyStore interface {
	LoadSignedPreKey(ctx context.Context, id uint32) (*SignedPreKeyRecord, error)
	StoreSignedPreKey(ctx context.Context, id uint32, record *SignedPreKeyRecord) error
}

type KyberPreKeyStore interface {
	LoadKyberPreKey(ctx context.Context, id uint32) (*KyberPreKeyRecord, error)
	StoreKyberPreKey(ctx context.Context, id uint32, record *KyberPreKeyRecord) error
	MarkKyberPreKeyUsed(ctx context.Context, id uint32) error
}
