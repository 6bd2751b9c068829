package hmac

import (
	"crypto/hmac"
	"hash"
)

// Hash returns the HMAC of the data using the key.
func Hash(hash func() hash.Hash, key []byte, data ...[]byte) []byte {
	mac := hmac.New(hash, key)
	for _, d := range data {
		mac.Write(d)
	}
	return mac.Sum(nil)
}

// Verify recomputes the tag over data and compares it in constant time.
func Verify(hash func() hash.Hash, key, tag []byte, data ...[]byte) bool {
	return hmac.Equal(tag, Hash(hash, key, data...))
}
