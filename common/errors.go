package common

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrBadInput              = errors.New("bad input")
	ErrUserExists            = errors.New("user already registered")
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrHandshake             = errors.New("handshake failed")
	ErrNoSession             = errors.New("no session")
	ErrEncryption            = errors.New("encryption failed")
	ErrDecryption            = errors.New("decryption failed")
	ErrPoolExhausted         = errors.New("no prekeys available")
	ErrPrimitive             = errors.New("cryptographic primitive failed")
)
