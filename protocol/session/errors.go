package session

import "errors"

var (
	ErrNoSession         = errors.New("no session for address")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrInvalidVersion    = errors.New("unsupported message version")
	ErrUntrustedIdentity = errors.New("untrusted identity key")
	ErrInvalidSignature  = errors.New("invalid signature on prekey")
	ErrInvalidKeyID      = errors.New("unknown prekey id")
	ErrInvalidBundle     = errors.New("invalid prekey bundle")
)
