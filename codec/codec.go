package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"signal-sessions/common"
	"signal-sessions/crypto/kem_kyber"
	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/protocol/session"
)

// SerializedPreKeyBundle is the transport form of a bundle. Keys and signatures are standard
// base64; absent optional fields are JSON null.
type SerializedPreKeyBundle struct {
	RegistrationID        uint32  `json:"registrationId"`
	DeviceID              uint32  `json:"deviceId"`
	PreKeyID              *uint32 `json:"preKeyId"`
	PreKey                *string `json:"preKey"`
	SignedPreKeyID        uint32  `json:"signedPreKeyId"`
	SignedPreKey          string  `json:"signedPreKey"`
	SignedPreKeySignature string  `json:"signedPreKeySignature"`
	IdentityKey           string  `json:"identityKey"`
	KyberPreKeyID         *uint32 `json:"kyberPreKeyId"`
	KyberPreKey           *string `json:"kyberPreKey"`
	KyberPreKeySignature  *string `json:"kyberPreKeySignature"`
}

func Serialize(b *session.PreKeyBundle) SerializedPreKeyBundle {
	out := SerializedPreKeyBundle{
		RegistrationID:        b.RegistrationID,
		DeviceID:              b.DeviceID,
		SignedPreKeyID:        b.SignedPreKeyID,
		SignedPreKey:          encode(b.SignedPreKey),
		SignedPreKeySignature: encode(b.SignedPreKeySignature),
		IdentityKey:           encode(b.IdentityKey),
	}
	if b.HasPreKey() {
		id := b.PreKeyID
		out.PreKeyID = &id
		out.PreKey = optional(b.PreKey)
	}
	if b.HasKyberPreKey() {
		id := b.KyberPreKeyID
		out.KyberPreKeyID = &id
		out.KyberPreKey = optional(b.KyberPreKey)
		out.KyberPreKeySignature = optional(b.KyberPreKeySignature)
	}
	return out
}

func Deserialize(s *SerializedPreKeyBundle) (*session.PreKeyBundle, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil bundle", common.ErrBadInput)
	}
	var err error
	b := &session.PreKeyBundle{
		RegistrationID: s.RegistrationID,
		DeviceID:       s.DeviceID,
		SignedPreKeyID: s.SignedPreKeyID,
	}

	if b.IdentityKey, err = decodeKey("identityKey", s.IdentityKey); err != nil {
		return nil, err
	}
	if b.SignedPreKey, err = decodeKey("signedPreKey", s.SignedPreKey); err != nil {
		return nil, err
	}
	if b.SignedPreKeySignature, err = decode("signedPreKeySignature", s.SignedPreKeySignature); err != nil {
		return nil, err
	}

	if s.PreKey == nil && s.PreKeyID != nil {
		return nil, fmt.Errorf("%w: preKeyId without preKey", common.ErrBadInput)
	}
	if s.KyberPreKey == nil && (s.KyberPreKeyID != nil || s.KyberPreKeySignature != nil) {
		return nil, fmt.Errorf("%w: kyberPreKeyId or signature without kyberPreKey", common.ErrBadInput)
	}

	if s.PreKey != nil {
		if s.PreKeyID == nil {
			return nil, fmt.Errorf("%w: preKey without preKeyId", common.ErrBadInput)
		}
		b.PreKeyID = *s.PreKeyID
		if b.PreKey, err = decodeKey("preKey", *s.PreKey); err != nil {
			return nil, err
		}
	}

	if s.KyberPreKey != nil {
		if s.KyberPreKeyID == nil || s.KyberPreKeySignature == nil {
			return nil, fmt.Errorf("%w: kyberPreKey without id or signature", common.ErrBadInput)
		}
		b.KyberPreKeyID = *s.KyberPreKeyID
		raw, err := decode("kyberPreKey", *s.KyberPreKey)
		if err != nil {
			return nil, err
		}
		if len(raw) != kem_kyber.Scheme.PublicKeySize() {
			return nil, fmt.Errorf("%w: kyberPreKey: %w", common.ErrBadInput, kem_kyber.ErrPublicKeySize)
		}
		b.KyberPreKey = raw
		if b.KyberPreKeySignature, err = decode("kyberPreKeySignature", *s.KyberPreKeySignature); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Marshal is Serialize followed by JSON encoding.
func Marshal(b *session.PreKeyBundle) ([]byte, error) {
	return json.Marshal(Serialize(b))
}

func Unmarshal(data []byte) (*session.PreKeyBundle, error) {
	var s SerializedPreKeyBundle
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrBadInput, err)
	}
	return Deserialize(&s)
}

func encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func optional(b []byte) *string {
	if b == nil {
		return nil
	}
	s := encode(b)
	return &s
}

func decode(field, s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: %s is empty", common.ErrBadInput, field)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrBadInput, field, err)
	}
	return raw, nil
}

func decodeKey(field, s string) (key_ed25519.PublicKey, error) {
	raw, err := decode(field, s)
	if err != nil {
		return nil, err
	}
	key := key_ed25519.PublicKey(raw)
	if _, err := key.ToPoint(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrBadInput, field, err)
	}
	return key, nil
}
