package manager

import (
	"context"
	"fmt"

	"signal-sessions/common"
	"signal-sessions/crypto/signer_schnorr"
	"signal-sessions/protocol/session"

	"github.com/sirupsen/logrus"
)

// CreatePreKeyBundle generates a fresh prekey, signed prekey and kyber prekey and assembles them
// into a bundle. The bundle is only returned once every signature in it verifies.
func (m *Manager) CreatePreKeyBundle(ctx context.Context) (*session.PreKeyBundle, error) {
	preKeyID, signedPreKeyID, kyberPreKeyID, err := m.nextIDs()
	if err != nil {
		return nil, err
	}
	logger := m.logger.WithField("prekey_id", preKeyID)
	logger.Debug("creating prekey bundle")

	preKeys, err := m.GeneratePreKeys(ctx, preKeyID, 1)
	if err != nil {
		return nil, err
	}

	signed, err := m.GenerateSignedPreKey(ctx, m.identity, signedPreKeyID)
	if err != nil {
		return nil, err
	}
	if err := signer_schnorr.Verify(m.identity.Pub, signed.KeyPair.Pub.Serialize(), signed.Signature); err != nil {
		return nil, fmt.Errorf("%w: signed prekey %d: %w", common.ErrSignatureVerification, signedPreKeyID, err)
	}

	kyber, err := m.GenerateKyberPreKey(ctx, m.identity, kyberPreKeyID)
	if err != nil {
		return nil, err
	}
	signed.KyberPreKeyID = &kyber.ID
	if err := m.stores.SignedPreKeys.StoreSignedPreKey(ctx, signed.ID, signed); err != nil {
		return nil, err
	}

	bundle := &session.PreKeyBundle{
		RegistrationID:        m.registrationID,
		DeviceID:              m.address.DeviceID,
		PreKeyID:              preKeys[0].ID,
		PreKey:                preKeys[0].KeyPair.Pub.Serialize(),
		SignedPreKeyID:        signed.ID,
		SignedPreKey:          signed.KeyPair.Pub.Serialize(),
		SignedPreKeySignature: signed.Signature,
		IdentityKey:           m.identity.Pub.Serialize(),
		KyberPreKeyID:         kyber.ID,
		KyberPreKey:           kyber.KeyPair.Pub.Serialize(),
		KyberPreKeySignature:  kyber.Signature,
	}
	if err := bundle.Verify(); err != nil {
		logger.Errorf("assembled bundle failed verification: %v", err)
		return nil, fmt.Errorf("%w: %w", common.ErrSignatureVerification, err)
	}

	logger.WithFields(logrus.Fields{
		"signed_prekey_id": signed.ID,
		"kyber_prekey_id":  kyber.ID,
	}).Debug("created prekey bundle")
	return bundle, nil
}

func (m *Manager) nextIDs() (preKeyID, signedPreKeyID, kyberPreKeyID uint32, err error) {
	for _, id := range []*uint32{&preKeyID, &signedPreKeyID, &kyberPreKeyID} {
		if *id, err = m.ids.NextID(); err != nil {
			return 0, 0, 0, fmt.Errorf("%w: key id: %w", common.ErrPrimitive, err)
		}
	}
	return preKeyID, signedPreKeyID, kyberPreKeyID, nil
}

// ValidatePreKeyBundle checks a bundle obtained out of band before it is trusted.
func ValidatePreKeyBundle(bundle *session.PreKeyBundle) error {
	if bundle == nil {
		return fmt.Errorf("%w: nil bundle", common.ErrBadInput)
	}
	if err := signer_schnorr.Verify(bundle.IdentityKey, bundle.SignedPreKey.Serialize(), bundle.SignedPreKeySignature); err != nil {
		return fmt.Errorf("%w: %w", common.ErrSignatureVerification, err)
	}
	return nil
}
