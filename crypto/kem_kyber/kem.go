package kem_kyber

import (
	"bytes"
	"errors"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber768"
)

type (
	// PublicKey is a serialized Kyber768 encapsulation key
	PublicKey []byte
	// PrivateKey is a serialized Kyber768 decapsulation key
	PrivateKey []byte
	Pair       struct {
		Priv PrivateKey
		Pub  PublicKey
	}
)

var (
	Scheme kem.Scheme = kyber768.Scheme()

	ErrPublicKeySize  = errors.New("kyber public key has wrong size")
	ErrPrivateKeySize = errors.New("kyber private key has wrong size")
	ErrCiphertextSize = errors.New("kyber ciphertext has wrong size")
)

func New() (Pair, error) {
	pk, sk, err := Scheme.GenerateKeyPair()
	if err != nil {
		return Pair{}, err
	}
	pub, err := pk.MarshalBinary()
	if err != nil {
		return Pair{}, err
	}
	priv, err := sk.MarshalBinary()
	if err != nil {
		return Pair{}, err
	}
	return Pair{Priv: priv, Pub: pub}, nil
}

// Encapsulate returns a ciphertext for pub and the shared secret it carries.
func Encapsulate(pub PublicKey) (ct, ss []byte, err error) {
	if len(pub) != Scheme.PublicKeySize() {
		return nil, nil, ErrPublicKeySize
	}
	pk, err := Scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	return Scheme.Encapsulate(pk)
}

// Decapsulate recovers the shared secret carried by ct.
func Decapsulate(priv PrivateKey, ct []byte) ([]byte, error) {
	if len(priv) != Scheme.PrivateKeySize() {
		return nil, ErrPrivateKeySize
	}
	if len(ct) != Scheme.CiphertextSize() {
		return nil, ErrCiphertextSize
	}
	sk, err := Scheme.UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return Scheme.Decapsulate(sk, ct)
}

func (pub PublicKey) Serialize() []byte {
	return bytes.Clone(pub)
}

func (pub PublicKey) Equals(other PublicKey) bool {
	return len(pub) > 0 && bytes.Equal(pub, other)
}

func (p Pair) Clone() Pair {
	return Pair{Priv: bytes.Clone(p.Priv), Pub: bytes.Clone(p.Pub)}
}
