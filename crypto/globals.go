package crypto

import "crypto/sha256"

var (
	DefaultHashFunc = sha256.New
)

const (
	HMACSHA256Size = 32

	// Message key expansion: AES-256 key | HMAC key | CBC IV
	AESKeySize             = 32
	AuthKeySize            = 32
	AESIVSize              = 16
	MessageKeyMaterialSize = AESKeySize + AuthKeySize + AESIVSize
)
