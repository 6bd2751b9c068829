package session

import (
	"time"

	"signal-sessions/crypto/kem_kyber"
	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/protocol/x3dh/alice"
)

type PreKeyRecord struct {
	ID      uint32           `json:"id"`
	KeyPair key_ed25519.Pair `json:"key_pair"`
}

type SignedPreKeyRecord struct {
	ID        uint32           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	KeyPair   key_ed25519.Pair `json:"key_pair"`
	Signature []byte           `json:"signature"`
	// KyberPreKeyID is the kyber prekey published next to this key, if any. Prekey messages
	// for this key must then carry that kyber prekey.
	KyberPreKeyID *uint32 `json:"kyber_prekey_id,omitempty"`
}

type KyberPreKeyRecord struct {
	ID        uint32         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	KeyPair   kem_kyber.Pair `json:"key_pair"`
	Signature []byte         `json:"signature"`
}

// PreKeyBundle is what a user publishes so that a peer can start a session with them.
// A nil PreKey or KyberPreKey means the bundle carries none.
type PreKeyBundle struct {
	RegistrationID        uint32
	DeviceID              uint32
	PreKeyID              uint32
	PreKey                key_ed25519.PublicKey
	SignedPreKeyID        uint32
	SignedPreKey          key_ed25519.PublicKey
	SignedPreKeySignature []byte
	IdentityKey           key_ed25519.PublicKey
	KyberPreKeyID         uint32
	KyberPreKey           kem_kyber.PublicKey
	KyberPreKeySignature  []byte
}

func (b *PreKeyBundle) HasPreKey() bool {
	return b.PreKey != nil
}

func (b *PreKeyBundle) HasKyberPreKey() bool {
	return b.KyberPreKey != nil
}

// Verify checks the signed prekey and the kyber prekey signatures against the bundle's identity key.
func (b *PreKeyBundle) Verify() error {
	if len(b.IdentityKey) == 0 || len(b.SignedPreKey) == 0 {
		return ErrInvalidBundle
	}
	if err := b.x3dh().Verify(); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

func (b *PreKeyBundle) x3dh() *alice.BobPrekeyBundle {
	return &alice.BobPrekeyBundle{
		IdentityKey:   b.IdentityKey,
		Prekey:        b.SignedPreKey,
		PrekeySig:     b.SignedPreKeySignature,
		OneTimePrekey: b.PreKey,
		KEMPrekey:     b.KyberPreKey,
		KEMPrekeySig:  b.KyberPreKeySignature,
	}
}
