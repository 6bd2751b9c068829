package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal-sessions/protocol/doubleratchet"
	"signal-sessions/protocol/x3dh/alice"
)

// ProcessPreKeyBundle runs the initiator side of the handshake against bundle and stores the
// resulting session for addr. The peer identity is saved once the session is stored.
func ProcessPreKeyBundle(
	ctx context.Context,
	bundle *PreKeyBundle,
	addr Address,
	sessions SessionStore,
	identities IdentityKeyStore,
	now time.Time,
) error {
	if bundle == nil || len(bundle.IdentityKey) == 0 || len(bundle.SignedPreKey) == 0 {
		return ErrInvalidBundle
	}

	trusted, err := identities.IsTrustedIdentity(ctx, addr, bundle.IdentityKey, DirectionSending)
	if err != nil {
		return err
	}
	if !trusted {
		return fmt.Errorf("%w: %s", ErrUntrustedIdentity, addr)
	}

	ourIdentity, err := identities.GetIdentityKeyPair(ctx)
	if err != nil {
		return err
	}
	ourRegistrationID, err := identities.GetLocalRegistrationID(ctx)
	if err != nil {
		return err
	}

	res, err := alice.PerformKeyAgreement(bundle.x3dh(), ourIdentity.Priv)
	if err != nil {
		if errors.Is(err, alice.ErrInvalidSignature) {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return err
	}

	var sk doubleratchet.RatchetKey
	copy(sk[:], res.SharedKey)
	dr, err := doubleratchet.InitAlice(sk, bundle.SignedPreKey)
	if err != nil {
		return err
	}

	pending := &PendingPreKey{
		SignedPreKeyID:  bundle.SignedPreKeyID,
		KyberCiphertext: res.KEMCiphertext,
		BaseKey:         res.EphemeralKey,
		Timestamp:       now,
	}
	if bundle.HasPreKey() {
		id := bundle.PreKeyID
		pending.PreKeyID = &id
	}
	if bundle.HasKyberPreKey() {
		id := bundle.KyberPreKeyID
		pending.KyberPreKeyID = &id
	}

	state := &SessionState{
		Version:              CurrentVersion,
		LocalIdentity:        ourIdentity.Pub.Serialize(),
		RemoteIdentity:       bundle.IdentityKey.Serialize(),
		LocalRegistrationID:  ourRegistrationID,
		RemoteRegistrationID: bundle.RegistrationID,
		AliceBaseKey:         res.EphemeralKey,
		Ratchet:              dr.CurrentState,
		Pending:              pending,
	}

	record, err := sessions.LoadSession(ctx, addr)
	if err != nil {
		return err
	}
	if record == nil {
		record = NewSessionRecord()
	}
	record.promoteState(state)

	if err := sessions.StoreSession(ctx, addr, record); err != nil {
		return err
	}
	_, err = identities.SaveIdentity(ctx, addr, bundle.IdentityKey)
	return err
}
