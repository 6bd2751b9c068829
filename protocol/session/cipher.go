package session

import (
	"context"
	"fmt"

	"signal-sessions/protocol/doubleratchet"
	"signal-sessions/protocol/x3dh/bob"
)

// Encrypt advances the sending chain of the session for addr. While the peer has not
// answered yet the message is wrapped in a PreKeySignalMessage.
func Encrypt(
	ctx context.Context,
	plaintext []byte,
	addr Address,
	sessions SessionStore,
	identities IdentityKeyStore,
) (CiphertextMessage, error) {
	record, err := sessions.LoadSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !record.HasCurrentState() {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, addr)
	}
	state := record.CurrentState

	trusted, err := identities.IsTrustedIdentity(ctx, addr, state.RemoteIdentity, DirectionSending)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, fmt.Errorf("%w: %s", ErrUntrustedIdentity, addr)
	}

	dr := doubleratchet.FromState(state.Ratchet)
	header, ciphertext, err := dr.Encrypt(plaintext, state.associatedData(true))
	if err != nil {
		return nil, err
	}
	state.Ratchet = dr.CurrentState

	var out CiphertextMessage = &SignalMessage{Header: *header, Ciphertext: ciphertext}
	if p := state.Pending; p != nil {
		out = &PreKeySignalMessage{
			RegistrationID:  state.LocalRegistrationID,
			PreKeyID:        p.PreKeyID,
			SignedPreKeyID:  p.SignedPreKeyID,
			KyberPreKeyID:   p.KyberPreKeyID,
			KyberCiphertext: p.KyberCiphertext,
			BaseKey:         p.BaseKey,
			IdentityKey:     state.LocalIdentity,
			Message:         out.(*SignalMessage),
		}
	}

	if err := sessions.StoreSession(ctx, addr, record); err != nil {
		return nil, err
	}
	return out, nil
}

// Decrypt handles a message on an established session. Archived states are tried after
// the current one; a state that decrypts is promoted back to current.
func Decrypt(
	ctx context.Context,
	msg *SignalMessage,
	addr Address,
	sessions SessionStore,
	identities IdentityKeyStore,
) ([]byte, error) {
	record, err := sessions.LoadSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	if record == nil || len(record.states()) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, addr)
	}

	var (
		plaintext []byte
		used      *SessionState
		lastErr   error
	)
	for _, state := range record.states() {
		if plaintext, lastErr = decryptWithState(state, msg); lastErr == nil {
			used = state
			break
		}
	}
	if used == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, lastErr)
	}

	trusted, err := identities.IsTrustedIdentity(ctx, addr, used.RemoteIdentity, DirectionReceiving)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, fmt.Errorf("%w: %s", ErrUntrustedIdentity, addr)
	}

	// the peer has our session, no need to keep resending the prekey material
	used.Pending = nil
	record.promoteState(used)

	if err := sessions.StoreSession(ctx, addr, record); err != nil {
		return nil, err
	}
	if _, err := identities.SaveIdentity(ctx, addr, used.RemoteIdentity); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// DecryptPreKey handles the first messages of a session started by the peer. It builds the
// responder state from the referenced local prekeys (or reuses the state built from the same
// base key), decrypts, and then consumes the one-time prekey and marks the kyber prekey used.
func DecryptPreKey(
	ctx context.Context,
	msg *PreKeySignalMessage,
	addr Address,
	sessions SessionStore,
	identities IdentityKeyStore,
	preKeys PreKeyStore,
	signedPreKeys SignedPreKeyStore,
	kyberPreKeys KyberPreKeyStore,
) ([]byte, error) {
	trusted, err := identities.IsTrustedIdentity(ctx, addr, msg.IdentityKey, DirectionReceiving)
	if err != nil {
		return nil, err
	}
	if !trusted {
		return nil, fmt.Errorf("%w: %s", ErrUntrustedIdentity, addr)
	}

	record, err := sessions.LoadSession(ctx, addr)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = NewSessionRecord()
	}

	state := record.stateForBaseKey(msg.BaseKey)
	fresh := state == nil
	if fresh {
		if state, err = buildResponderState(ctx, msg, identities, preKeys, signedPreKeys, kyberPreKeys); err != nil {
			return nil, err
		}
	}

	plaintext, err := decryptWithState(state, msg.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	record.promoteState(state)

	if err := sessions.StoreSession(ctx, addr, record); err != nil {
		return nil, err
	}
	if _, err := identities.SaveIdentity(ctx, addr, msg.IdentityKey); err != nil {
		return nil, err
	}

	if fresh {
		if msg.PreKeyID != nil {
			if err := preKeys.RemovePreKey(ctx, *msg.PreKeyID); err != nil {
				return nil, err
			}
		}
		if msg.KyberPreKeyID != nil {
			if err := kyberPreKeys.MarkKyberPreKeyUsed(ctx, *msg.KyberPreKeyID); err != nil {
				return nil, err
			}
		}
	}
	return plaintext, nil
}

func buildResponderState(
	ctx context.Context,
	msg *PreKeySignalMessage,
	identities IdentityKeyStore,
	preKeys PreKeyStore,
	signedPreKeys SignedPreKeyStore,
	kyberPreKeys KyberPreKeyStore,
) (*SessionState, error) {
	ourIdentity, err := identities.GetIdentityKeyPair(ctx)
	if err != nil {
		return nil, err
	}
	ourRegistrationID, err := identities.GetLocalRegistrationID(ctx)
	if err != nil {
		return nil, err
	}

	signed, err := signedPreKeys.LoadSignedPreKey(ctx, msg.SignedPreKeyID)
	if err != nil {
		return nil, fmt.Errorf("%w: signed prekey %d: %w", ErrInvalidKeyID, msg.SignedPreKeyID, err)
	}

	if want := signed.KyberPreKeyID; want != nil {
		if msg.KyberPreKeyID == nil {
			return nil, fmt.Errorf("%w: signed prekey %d requires kyber prekey %d", ErrInvalidMessage, signed.ID, *want)
		}
		if *msg.KyberPreKeyID != *want {
			return nil, fmt.Errorf("%w: kyber prekey %d not issued with signed prekey %d", ErrInvalidMessage, *msg.KyberPreKeyID, signed.ID)
		}
	}

	ours := &bob.BobPrekeyBundle{
		IdentityKey: ourIdentity.Priv,
		Prekey:      signed.KeyPair.Priv,
	}
	if msg.PreKeyID != nil {
		pk, err := preKeys.LoadPreKey(ctx, *msg.PreKeyID)
		if err != nil {
			return nil, fmt.Errorf("%w: prekey %d: %w", ErrInvalidKeyID, *msg.PreKeyID, err)
		}
		ours.OneTimePrekey = pk.KeyPair.Priv
	}
	if msg.KyberPreKeyID != nil {
		kpk, err := kyberPreKeys.LoadKyberPreKey(ctx, *msg.KyberPreKeyID)
		if err != nil {
			return nil, fmt.Errorf("%w: kyber prekey %d: %w", ErrInvalidKeyID, *msg.KyberPreKeyID, err)
		}
		ours.KEMPrekey = kpk.KeyPair
	}

	sharedKey, err := bob.PerformKeyAgreement(ours, &bob.ReceivedAliceKeyBundle{
		IdentityKey:   msg.IdentityKey,
		EphemeralKey:  msg.BaseKey,
		KEMCiphertext: msg.KyberCiphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	var sk doubleratchet.RatchetKey
	copy(sk[:], sharedKey)
	dr := doubleratchet.InitBob(sk, signed.KeyPair)

	return &SessionState{
		Version:              CurrentVersion,
		LocalIdentity:        ourIdentity.Pub.Serialize(),
		RemoteIdentity:       msg.IdentityKey.Serialize(),
		LocalRegistrationID:  ourRegistrationID,
		RemoteRegistrationID: msg.RegistrationID,
		AliceBaseKey:         msg.BaseKey.Serialize(),
		Ratchet:              dr.CurrentState,
	}, nil
}

// decryptWithState leaves state untouched unless decryption succeeds.
func decryptWithState(state *SessionState, msg *SignalMessage) ([]byte, error) {
	if state.Ratchet == nil {
		return nil, ErrNoSession
	}
	dr := doubleratchet.FromState(state.Ratchet)
	plaintext, err := dr.Decrypt(msg.Header, msg.Ciphertext, state.associatedData(false))
	if err != nil {
		return nil, err
	}
	state.Ratchet = dr.CurrentState
	return plaintext, nil
}
