package alice

import (
	"errors"
	"fmt"

	"signal-sessions/crypto/kem_kyber"
	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/crypto/signer_schnorr"
)

var (
	ErrInvalidSignature = errors.New("invalid prekey signature")
)

// BobPrekeyBundle is the public half of what Bob publishes.
type BobPrekeyBundle struct {
	IdentityKey   key_ed25519.PublicKey
	Prekey        key_ed25519.PublicKey
	PrekeySig     []byte
	OneTimePrekey key_ed25519.PublicKey // optional
	KEMPrekey     kem_kyber.PublicKey   // optional
	KEMPrekeySig  []byte
}

type aliceKeyBundle struct {
	IdentityKey  key_ed25519.PrivateKey
	EphemeralKey key_ed25519.PrivateKey
}

// Result is what Alice has to keep (SharedKey) and send (the rest) after the agreement.
type Result struct {
	SharedKey     []byte
	EphemeralKey  key_ed25519.PublicKey
	KEMCiphertext []byte // nil when Bob published no KEM prekey
}

// Verify checks the signed prekey and, when present, the KEM prekey against Bob's identity key.
func (bob *BobPrekeyBundle) Verify() error {
	if err := signer_schnorr.Verify(bob.IdentityKey, bob.Prekey.Serialize(), bob.PrekeySig); err != nil {
		return fmt.Errorf("%w: signed prekey: %v", ErrInvalidSignature, err)
	}
	if bob.KEMPrekey != nil {
		if err := signer_schnorr.Verify(bob.IdentityKey, bob.KEMPrekey.Serialize(), bob.KEMPrekeySig); err != nil {
			return fmt.Errorf("%w: kem prekey: %v", ErrInvalidSignature, err)
		}
	}
	return nil
}
