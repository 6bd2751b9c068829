package bob

import (
	"errors"
	"fmt"

	"signal-sessions/crypto/kem_kyber"
	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/crypto/signer_schnorr"
	"signal-sessions/protocol/x3dh/alice"
)

var (
	ErrMissingKEMCiphertext = errors.New("kem prekey in use but no ciphertext received")
)

// BobPrekeyBundle is the private half of what Bob publishes.
type BobPrekeyBundle struct {
	IdentityKey   key_ed25519.PrivateKey
	Prekey        key_ed25519.PrivateKey
	OneTimePrekey key_ed25519.PrivateKey // optional
	KEMPrekey     kem_kyber.Pair         // optional, zero value when unused
}

type ReceivedAliceKeyBundle struct {
	IdentityKey   key_ed25519.PublicKey
	EphemeralKey  key_ed25519.PublicKey
	KEMCiphertext []byte
}

func (bob *BobPrekeyBundle) ToPublicBundle() (alice.BobPrekeyBundle, error) {
	identityKeyPub, err := bob.IdentityKey.Public()
	if err != nil {
		return alice.BobPrekeyBundle{}, fmt.Errorf("failed to get public identity key: %w", err)
	}

	prekeyPub, err := bob.Prekey.Public()
	if err != nil {
		return alice.BobPrekeyBundle{}, fmt.Errorf("failed to get public prekey: %w", err)
	}

	prekeySig, err := signer_schnorr.Sign(bob.IdentityKey, prekeyPub.Serialize())
	if err != nil {
		return alice.BobPrekeyBundle{}, fmt.Errorf("failed to sign prekey: %w", err)
	}

	out := alice.BobPrekeyBundle{
		IdentityKey: identityKeyPub,
		Prekey:      prekeyPub,
		PrekeySig:   prekeySig,
	}

	if bob.OneTimePrekey != nil {
		if out.OneTimePrekey, err = bob.OneTimePrekey.Public(); err != nil {
			return alice.BobPrekeyBundle{}, fmt.Errorf("failed to get public one-time prekey: %w", err)
		}
	}

	if bob.KEMPrekey.Pub != nil {
		out.KEMPrekey = bob.KEMPrekey.Pub
		if out.KEMPrekeySig, err = signer_schnorr.Sign(bob.IdentityKey, bob.KEMPrekey.Pub.Serialize()); err != nil {
			return alice.BobPrekeyBundle{}, fmt.Errorf("failed to sign kem prekey: %w", err)
		}
	}

	return out, nil
}
