package kem_kyber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncapsulateDecapsulate(t *testing.T) {
	pair, err := New()
	require.NoError(t, err)
	assert.Len(t, pair.Pub, Scheme.PublicKeySize())
	assert.Len(t, pair.Priv, Scheme.PrivateKeySize())

	ct, ss, err := Encapsulate(pair.Pub)
	require.NoError(t, err)

	recovered, err := Decapsulate(pair.Priv, ct)
	require.NoError(t, err)
	assert.Equal(t, ss, recovered)
}

func TestDecapsulateWithOtherKeyDiffers(t *testing.T) {
	pair, err := New()
	require.NoError(t, err)
	other, err := New()
	require.NoError(t, err)

	ct, ss, err := Encapsulate(pair.Pub)
	require.NoError(t, err)

	// Kyber decapsulation is implicit-rejecting: no error, different secret.
	recovered, err := Decapsulate(other.Priv, ct)
	require.NoError(t, err)
	assert.NotEqual(t, ss, recovered)
}

func TestSizeChecks(t *testing.T) {
	_, _, err := Encapsulate(PublicKey("short"))
	assert.ErrorIs(t, err, ErrPublicKeySize)

	pair, err := New()
	require.NoError(t, err)
	_, err = Decapsulate(pair.Priv, []byte("short"))
	assert.ErrorIs(t, err, ErrCiphertextSize)

	_, err = Decapsulate(PrivateKey("short"), make([]byte, Scheme.CiphertextSize()))
	assert.ErrorIs(t, err, ErrPrivateKeySize)
}
