package bob

import (
	"signal-sessions/crypto/dh25519"
	"signal-sessions/crypto/hkdf"
	"signal-sessions/crypto/kem_kyber"
)

// https://signal.org/docs/specifications/x3dh/ and
// https://signal.org/docs/specifications/pqxdh/
// Terminology:
// - Alice: sender
// - Bob: receiver

func PerformKeyAgreement(bob *BobPrekeyBundle, alice *ReceivedAliceKeyBundle) (key []byte, err error) {
	// 1. Bob computes the shared secret
	dh1, err := dh25519.GetSharedSecret(bob.Prekey, alice.IdentityKey)
	if err != nil {
		return nil, err
	}
	dh2, err := dh25519.GetSharedSecret(bob.IdentityKey, alice.EphemeralKey)
	if err != nil {
		return nil, err
	}
	dh3, err := dh25519.GetSharedSecret(bob.Prekey, alice.EphemeralKey)
	if err != nil {
		return nil, err
	}

	sk := make([]byte, 0, len(dh1)+len(dh2)+len(dh3)+64)
	sk = append(sk, dh1...)
	sk = append(sk, dh2...)
	sk = append(sk, dh3...)

	// If Alice used Bob's one-time key
	if bob.OneTimePrekey != nil {
		dh4, err := dh25519.GetSharedSecret(bob.OneTimePrekey, alice.EphemeralKey)
		if err != nil {
			return nil, err
		}
		sk = append(sk, dh4...)
	}

	// 2. Bob decapsulates the KEM secret
	if bob.KEMPrekey.Priv != nil {
		if alice.KEMCiphertext == nil {
			return nil, ErrMissingKEMCiphertext
		}
		ss, err := kem_kyber.Decapsulate(bob.KEMPrekey.Priv, alice.KEMCiphertext)
		if err != nil {
			return nil, err
		}
		sk = append(sk, ss...)
	}

	// 3. Bob derives the key
	key, err = hkdf.New32BytesKeyFromSecret(sk)
	if err != nil {
		return nil, err
	}
	return key, nil
}
