package session

import (
	"encoding/json"
	"fmt"

	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/protocol/doubleratchet"
)

const CurrentVersion = 3

type MessageType byte

const (
	SignalMessageType MessageType = 2
	PreKeyMessageType MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case SignalMessageType:
		return "signal"
	case PreKeyMessageType:
		return "prekey"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// CiphertextMessage is a self-describing serialized message: version and type in the first byte.
type CiphertextMessage interface {
	Type() MessageType
	Serialize() ([]byte, error)
}

type SignalMessage struct {
	Header     doubleratchet.Header `json:"header"`
	Ciphertext []byte               `json:"ciphertext"`
}

type PreKeySignalMessage struct {
	RegistrationID  uint32                `json:"registration_id"`
	PreKeyID        *uint32               `json:"pre_key_id,omitempty"`
	SignedPreKeyID  uint32                `json:"signed_pre_key_id"`
	KyberPreKeyID   *uint32               `json:"kyber_pre_key_id,omitempty"`
	KyberCiphertext []byte                `json:"kyber_ciphertext,omitempty"`
	BaseKey         key_ed25519.PublicKey `json:"base_key"`
	IdentityKey     key_ed25519.PublicKey `json:"identity_key"`
	Message         *SignalMessage        `json:"message"`
}

func (m *SignalMessage) Type() MessageType { return SignalMessageType }

func (m *SignalMessage) Serialize() ([]byte, error) {
	return frame(SignalMessageType, m)
}

func (m *PreKeySignalMessage) Type() MessageType { return PreKeyMessageType }

func (m *PreKeySignalMessage) Serialize() ([]byte, error) {
	return frame(PreKeyMessageType, m)
}

func ParseSignalMessage(data []byte) (*SignalMessage, error) {
	var m SignalMessage
	if err := unframe(data, SignalMessageType, &m); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func ParsePreKeySignalMessage(data []byte) (*PreKeySignalMessage, error) {
	var m PreKeySignalMessage
	if err := unframe(data, PreKeyMessageType, &m); err != nil {
		return nil, err
	}
	if len(m.BaseKey) == 0 || len(m.IdentityKey) == 0 || m.Message == nil {
		return nil, fmt.Errorf("%w: incomplete prekey message", ErrInvalidMessage)
	}
	if m.KyberPreKeyID != nil && len(m.KyberCiphertext) == 0 {
		return nil, fmt.Errorf("%w: kyber prekey id without ciphertext", ErrInvalidMessage)
	}
	if err := m.Message.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *SignalMessage) validate() error {
	if len(m.Header.RatchetPub) == 0 || len(m.Ciphertext) == 0 {
		return fmt.Errorf("%w: incomplete signal message", ErrInvalidMessage)
	}
	return nil
}

func frame(t MessageType, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(raw)+1)
	out = append(out, byte(CurrentVersion<<4)|byte(t))
	return append(out, raw...), nil
}

func unframe(data []byte, want MessageType, body any) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: too short", ErrInvalidMessage)
	}
	if version := int(data[0] >> 4); version != CurrentVersion {
		return fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}
	if got := MessageType(data[0] & 0x0F); got != want {
		return fmt.Errorf("%w: expected %s message, got %s", ErrInvalidMessage, want, got)
	}
	if err := json.Unmarshal(data[1:], body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// PeekType reads the message type without parsing the body.
func PeekType(data []byte) (MessageType, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: empty", ErrInvalidMessage)
	}
	return MessageType(data[0] & 0x0F), nil
}
