package key_ed25519

import (
	"bytes"
	"errors"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/suites"
)

type (
	// PrivateKey is a 32-byte private key
	PrivateKey []byte
	// PublicKey is a 32-byte public key
	PublicKey []byte
	Pair      struct {
		Priv PrivateKey
		Pub  PublicKey
	}
)

var (
	Suite = suites.MustFind("Ed25519") // Use the edwards25519-curve

	ErrEmptyKey = errors.New("empty key")
)

func New() (PrivateKey, error) {
	privK := Suite.Scalar().Pick(Suite.RandomStream())
	return privK.MarshalBinary()
}

// NewPair generates a private key and derives its public half.
func NewPair() (Pair, error) {
	priv, err := New()
	if err != nil {
		return Pair{}, err
	}
	pub, err := priv.Public()
	if err != nil {
		return Pair{}, err
	}
	return Pair{Priv: priv, Pub: pub}, nil
}

func (privB PrivateKey) Public() (PublicKey, error) {
	privK, err := privB.ToScalar()
	if err != nil {
		return nil, err
	}
	pubK := Suite.Point().Mul(privK, nil)
	return pubK.MarshalBinary()
}

func (privB PrivateKey) ToScalar() (kyber.Scalar, error) {
	if len(privB) == 0 {
		return nil, ErrEmptyKey
	}
	privK := Suite.Scalar()
	if err := privK.UnmarshalBinary(privB); err != nil {
		return nil, err
	}
	return privK, nil
}

func (pubB PublicKey) ToPoint() (kyber.Point, error) {
	if len(pubB) == 0 {
		return nil, ErrEmptyKey
	}
	pubK := Suite.Point()
	if err := pubK.UnmarshalBinary(pubB); err != nil {
		return nil, err
	}
	return pubK, nil
}

// Serialize returns a copy of the encoded point, the form that gets signed.
func (pubB PublicKey) Serialize() []byte {
	return bytes.Clone(pubB)
}

func (pubB PublicKey) Equals(other PublicKey) bool {
	return len(pubB) > 0 && bytes.Equal(pubB, other)
}

// Clone copies both halves so callers can't alias store-owned buffers.
func (p Pair) Clone() Pair {
	return Pair{Priv: bytes.Clone(p.Priv), Pub: bytes.Clone(p.Pub)}
}
