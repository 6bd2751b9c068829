package doubleratchet

import "errors"

var (
	ErrInvalidSecretLength = errors.New("invalid secret length")
	ErrInvalidTag          = errors.New("invalid tag")
	ErrSkippingTooManyKeys = errors.New("skipping too many message keys")
	ErrNoSendingChain      = errors.New("no sending chain yet")
	ErrNoReceivingChain    = errors.New("no receiving chain yet")
	ErrCiphertextTooShort  = errors.New("ciphertext too short")
)
