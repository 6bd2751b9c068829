package fingerprint

import (
	"crypto/sha512"
	"encoding/binary"
	"strings"

	"signal-sessions/crypto/key_ed25519"
)

const (
	iterations = 5200
	// Digits is the length of a fingerprint
	Digits = 30
)

// Fingerprint impl mimics what Signal app actually does
func Fingerprint(pubKey key_ed25519.PublicKey, userIdentifier []byte) (*[Digits]int, error) {
	if len(pubKey) == 0 {
		return nil, key_ed25519.ErrEmptyKey
	}
	digest := make([]byte, 0, len(pubKey)+len(userIdentifier))
	digest = append(digest, pubKey...)
	digest = append(digest, userIdentifier...)

	hash := sha512.New()
	for i := 0; i < iterations; i++ {
		if _, err := hash.Write(digest); err != nil {
			return nil, err
		}
		if _, err := hash.Write(pubKey); err != nil {
			return nil, err
		}
		digest = hash.Sum(nil)
		hash.Reset()
	}

	var result [30]byte
	copy(result[:], digest[:30])

	var finalResult [Digits]int
	for i := 0; i < 6; i++ {
		chunk := result[i*5 : (i+1)*5]
		num := binary.BigEndian.Uint64(append([]byte{0, 0, 0}, chunk...)) % 100000
		for j := 4; j >= 0; j-- {
			finalResult[i*5+j] = int(num % 10)
			num /= 10
		}
	}

	return &finalResult, nil
}

// Display renders a fingerprint as six space separated groups of five digits.
func Display(fp *[Digits]int) string {
	var sb strings.Builder
	for i, d := range fp {
		if i > 0 && i%5 == 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte(byte('0' + d))
	}
	return sb.String()
}
