package manager

import (
	"context"
	"errors"
	"fmt"

	"signal-sessions/common"
	"signal-sessions/protocol/session"

	"github.com/sirupsen/logrus"
)

// ProcessPreKeyBundle saves the peer identity and establishes a session from its bundle.
// The saved identity is kept even if the handshake fails afterwards.
func (m *Manager) ProcessPreKeyBundle(ctx context.Context, bundle *session.PreKeyBundle, peer session.Address) error {
	if bundle == nil {
		return fmt.Errorf("%w: nil bundle", common.ErrBadInput)
	}
	logger := m.logger.WithField("peer", peer.String())

	unlock := m.locks.lock(peer)
	defer unlock()

	trusted, err := m.stores.Identities.IsTrustedIdentity(ctx, peer, bundle.IdentityKey, session.DirectionSending)
	if err != nil {
		return err
	}
	if !trusted {
		return fmt.Errorf("%w: %w", common.ErrHandshake, session.ErrUntrustedIdentity)
	}

	changed, err := m.stores.Identities.SaveIdentity(ctx, peer, bundle.IdentityKey)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrHandshake, err)
	}
	if changed {
		logger.Debug("saved peer identity")
	}

	if err := session.ProcessPreKeyBundle(ctx, bundle, peer, m.stores.Sessions, m.stores.Identities, m.now()); err != nil {
		logger.Errorf("failed to process prekey bundle: %v", err)
		return fmt.Errorf("%w: %w", common.ErrHandshake, err)
	}
	logger.Debug("session established")
	return nil
}

// EncryptMessage encrypts plaintext for peer and returns the serialized message.
func (m *Manager) EncryptMessage(ctx context.Context, peer session.Address, plaintext []byte) ([]byte, error) {
	unlock := m.locks.lock(peer)
	defer unlock()

	msg, err := session.Encrypt(ctx, plaintext, peer, m.stores.Sessions, m.stores.Identities)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, fmt.Errorf("%w: %s", common.ErrNoSession, peer)
		}
		m.logger.WithField("peer", peer.String()).Errorf("failed to encrypt: %v", err)
		return nil, fmt.Errorf("%w: %w", common.ErrEncryption, err)
	}

	out, err := msg.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEncryption, err)
	}
	m.logger.WithFields(logrus.Fields{
		"peer": peer.String(),
		"type": msg.Type().String(),
	}).Debug("encrypted message")
	return out, nil
}

// DecryptMessage decrypts ciphertext from peer. It is tried as a session message first and only
// then as a prekey message, which may create the session.
func (m *Manager) DecryptMessage(ctx context.Context, peer session.Address, ciphertext []byte) ([]byte, error) {
	plaintext, _, err := m.decrypt(ctx, peer, ciphertext)
	return plaintext, err
}

func (m *Manager) decrypt(ctx context.Context, peer session.Address, ciphertext []byte) ([]byte, session.MessageType, error) {
	unlock := m.locks.lock(peer)
	defer unlock()

	logger := m.logger.WithField("peer", peer.String())

	plaintext, sessionErr := m.decryptSessionMessage(ctx, peer, ciphertext)
	if sessionErr == nil {
		logger.Debug("decrypted session message")
		return plaintext, session.SignalMessageType, nil
	}

	plaintext, preKeyErr := m.decryptPreKeyMessage(ctx, peer, ciphertext)
	if preKeyErr == nil {
		logger.Debug("decrypted prekey message")
		return plaintext, session.PreKeyMessageType, nil
	}

	logger.Errorf("failed to decrypt: session path: %v, prekey path: %v", sessionErr, preKeyErr)
	return nil, 0, fmt.Errorf("%w: %w", common.ErrDecryption, errors.Join(sessionErr, preKeyErr))
}

func (m *Manager) decryptSessionMessage(ctx context.Context, peer session.Address, ciphertext []byte) ([]byte, error) {
	msg, err := session.ParseSignalMessage(ciphertext)
	if err != nil {
		return nil, err
	}
	return session.Decrypt(ctx, msg, peer, m.stores.Sessions, m.stores.Identities)
}

func (m *Manager) decryptPreKeyMessage(ctx context.Context, peer session.Address, ciphertext []byte) ([]byte, error) {
	msg, err := session.ParsePreKeySignalMessage(ciphertext)
	if err != nil {
		return nil, err
	}
	return session.DecryptPreKey(ctx, msg, peer, m.stores.Sessions, m.stores.Identities,
		m.stores.PreKeys, m.stores.SignedPreKeys, m.stores.KyberPreKeys)
}

// HasSession reports whether peer has a session with an active ratchet.
func (m *Manager) HasSession(ctx context.Context, peer session.Address) (bool, error) {
	record, err := m.stores.Sessions.LoadSession(ctx, peer)
	if err != nil {
		return false, err
	}
	return record.HasCurrentState(), nil
}
