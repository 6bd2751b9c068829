package aes256

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	var key [32]byte
	var iv [16]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	_, err = rand.Read(iv[:])
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hi")},
		{"exact block", []byte("0123456789abcdef")},
		{"multi block", []byte("Hello, Bob! This is a secret message.")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := Encrypt(tt.plaintext, key, iv)
			require.NoError(t, err)
			assert.Zero(t, len(ct)%16)

			pt, err := Decrypt(ct, key, iv)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, pt)
		})
	}
}

func TestDecryptRejectsBadInput(t *testing.T) {
	var key [32]byte
	var iv [16]byte

	_, err := Decrypt(nil, key, iv)
	assert.ErrorIs(t, err, ErrCiphertextLengthInvalid)

	_, err = Decrypt(make([]byte, 15), key, iv)
	assert.ErrorIs(t, err, ErrCiphertextLengthInvalid)
}

func TestUnpaddingRejectsMalformedPadding(t *testing.T) {
	block := []byte("0123456789abcde\x00")
	_, err := pkcs7Unpadding(block, 16)
	assert.ErrorIs(t, err, ErrPaddingInvalid)

	block = []byte("0123456789abcd\x01\x02")
	_, err = pkcs7Unpadding(block, 16)
	assert.ErrorIs(t, err, ErrPaddingInvalid)

	block = []byte("0123456789abcd\x02\x02")
	out, err := pkcs7Unpadding(block, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcd"), out)
}
