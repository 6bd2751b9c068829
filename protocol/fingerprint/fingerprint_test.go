package fingerprint

import (
	"testing"

	"signal-sessions/crypto/key_ed25519"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	pair, err := key_ed25519.NewPair()
	require.NoError(t, err)

	fp1, err := Fingerprint(pair.Pub, []byte("alice"))
	require.NoError(t, err)
	fp2, err := Fingerprint(pair.Pub, []byte("alice"))
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	other, err := Fingerprint(pair.Pub, []byte("bob"))
	require.NoError(t, err)
	assert.NotEqual(t, fp1, other)

	for _, d := range fp1 {
		assert.True(t, d >= 0 && d <= 9)
	}

	s := Display(fp1)
	assert.Len(t, s, Digits+5)
	assert.Equal(t, byte(' '), s[5])
}

func TestFingerprintEmptyKey(t *testing.T) {
	_, err := Fingerprint(nil, []byte("alice"))
	assert.ErrorIs(t, err, key_ed25519.ErrEmptyKey)
}
