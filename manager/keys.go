package manager

import (
	"context"
	"fmt"

	"signal-sessions/common"
	"signal-sessions/crypto/kem_kyber"
	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/crypto/signer_schnorr"
	"signal-sessions/protocol/session"
)

// GenerateIdentityKeyPair returns a fresh identity; callers that need continuity must keep it.
func GenerateIdentityKeyPair() (key_ed25519.Pair, error) {
	pair, err := key_ed25519.NewPair()
	if err != nil {
		return key_ed25519.Pair{}, fmt.Errorf("%w: identity key: %w", common.ErrPrimitive, err)
	}
	return pair, nil
}

// GeneratePreKeys creates count prekeys with ids start..start+count-1 and stores each one.
func (m *Manager) GeneratePreKeys(ctx context.Context, start uint32, count int) ([]session.PreKeyRecord, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative prekey count %d", common.ErrBadInput, count)
	}
	records := make([]session.PreKeyRecord, 0, count)
	for i := 0; i < count; i++ {
		pair, err := key_ed25519.NewPair()
		if err != nil {
			return nil, fmt.Errorf("%w: prekey: %w", common.ErrPrimitive, err)
		}
		rec := session.PreKeyRecord{ID: start + uint32(i), KeyPair: pair}
		if err := m.stores.PreKeys.StorePreKey(ctx, rec.ID, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	m.logger.WithField("count", count).Debug("generated prekeys")
	return records, nil
}

// GenerateSignedPreKey signs a new key with identity and checks the signature before storing it.
func (m *Manager) GenerateSignedPreKey(ctx context.Context, identity key_ed25519.Pair, id uint32) (*session.SignedPreKeyRecord, error) {
	pair, err := key_ed25519.NewPair()
	if err != nil {
		return nil, fmt.Errorf("%w: signed prekey: %w", common.ErrPrimitive, err)
	}
	sig, err := m.sign(identity.Priv, pair.Pub.Serialize())
	if err != nil {
		return nil, fmt.Errorf("%w: sign signed prekey: %w", common.ErrPrimitive, err)
	}
	if err := signer_schnorr.Verify(identity.Pub, pair.Pub.Serialize(), sig); err != nil {
		m.logger.WithField("id", id).Errorf("signed prekey failed self-verification: %v", err)
		return nil, fmt.Errorf("%w: signed prekey %d: %w", common.ErrSignatureVerification, id, err)
	}

	rec := &session.SignedPreKeyRecord{
		ID:        id,
		Timestamp: m.now(),
		KeyPair:   pair,
		Signature: sig,
	}
	if err := m.stores.SignedPreKeys.StoreSignedPreKey(ctx, id, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GenerateKyberPreKey signs a new KEM prekey with identity and checks the signature before storing it.
func (m *Manager) GenerateKyberPreKey(ctx context.Context, identity key_ed25519.Pair, id uint32) (*session.KyberPreKeyRecord, error) {
	pair, err := kem_kyber.New()
	if err != nil {
		return nil, fmt.Errorf("%w: kyber prekey: %w", common.ErrPrimitive, err)
	}
	sig, err := m.sign(identity.Priv, pair.Pub.Serialize())
	if err != nil {
		return nil, fmt.Errorf("%w: sign kyber prekey: %w", common.ErrPrimitive, err)
	}
	if err := signer_schnorr.Verify(identity.Pub, pair.Pub.Serialize(), sig); err != nil {
		m.logger.WithField("id", id).Errorf("kyber prekey failed self-verification: %v", err)
		return nil, fmt.Errorf("%w: kyber prekey %d: %w", common.ErrSignatureVerification, id, err)
	}

	rec := &session.KyberPreKeyRecord{
		ID:        id,
		Timestamp: m.now(),
		KeyPair:   pair,
		Signature: sig,
	}
	if err := m.stores.KyberPreKeys.StoreKyberPreKey(ctx, id, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
