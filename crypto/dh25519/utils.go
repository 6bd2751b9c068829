package dh25519

import (
	"errors"

	"signal-sessions/crypto/key_ed25519"
)

var (
	ErrInvalid = errors.New("invalid input")
)

// GetSharedSecret multiplies B's public point by A's private scalar.
func GetSharedSecret(APrivKey key_ed25519.PrivateKey, BPubKey key_ed25519.PublicKey) ([]byte, error) {
	if len(APrivKey) == 0 || len(BPubKey) == 0 {
		return nil, ErrInvalid
	}
	privScalar, err := APrivKey.ToScalar()
	if err != nil {
		return nil, err
	}
	pubPoint, err := BPubKey.ToPoint()
	if err != nil {
		return nil, err
	}
	secretPoint := key_ed25519.Suite.Point().Mul(privScalar, pubPoint)
	return secretPoint.MarshalBinary()
}
