package alice

import (
	"signal-sessions/crypto/dh25519"
	"signal-sessions/crypto/hkdf"
	"signal-sessions/crypto/kem_kyber"
	"signal-sessions/crypto/key_ed25519"
)

// https://signal.org/docs/specifications/x3dh/ and
// https://signal.org/docs/specifications/pqxdh/
// Terminology:
// - Alice: sender
// - Bob: receiver

func PerformKeyAgreement(bob *BobPrekeyBundle, aliceIdKey key_ed25519.PrivateKey) (*Result, error) {
	alice := aliceKeyBundle{
		IdentityKey: aliceIdKey,
	}

	// 1. Alice verifies Bob's signatures
	if err := bob.Verify(); err != nil {
		return nil, err
	}

	// 2. Alice generates an ephemeral key pair
	eph, err := key_ed25519.NewPair()
	if err != nil {
		return nil, err
	}
	alice.EphemeralKey = eph.Priv

	// 3. Alice computes the shared secret
	dh1, err := dh25519.GetSharedSecret(alice.IdentityKey, bob.Prekey)
	if err != nil {
		return nil, err
	}
	dh2, err := dh25519.GetSharedSecret(alice.EphemeralKey, bob.IdentityKey)
	if err != nil {
		return nil, err
	}
	dh3, err := dh25519.GetSharedSecret(alice.EphemeralKey, bob.Prekey)
	if err != nil {
		return nil, err
	}

	sk := make([]byte, 0, len(dh1)+len(dh2)+len(dh3)+64)
	sk = append(sk, dh1...)
	sk = append(sk, dh2...)
	sk = append(sk, dh3...)

	// If Bob provides one-time key
	if bob.OneTimePrekey != nil {
		dh4, err := dh25519.GetSharedSecret(alice.EphemeralKey, bob.OneTimePrekey)
		if err != nil {
			return nil, err
		}
		sk = append(sk, dh4...)
	}

	// 4. Alice encapsulates to Bob's KEM prekey
	var kemCiphertext []byte
	if bob.KEMPrekey != nil {
		ct, ss, err := kem_kyber.Encapsulate(bob.KEMPrekey)
		if err != nil {
			return nil, err
		}
		kemCiphertext = ct
		sk = append(sk, ss...)
	}

	// 5. Alice derives the key
	sharedKey, err := hkdf.New32BytesKeyFromSecret(sk)
	if err != nil {
		return nil, err
	}

	return &Result{
		SharedKey:     sharedKey,
		EphemeralKey:  eph.Pub,
		KEMCiphertext: kemCiphertext,
	}, nil
}
