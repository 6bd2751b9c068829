package manager

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"signal-sessions/common"
	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/crypto/signer_schnorr"
	"signal-sessions/protocol/doubleratchet"
	"signal-sessions/protocol/session"
	"signal-sessions/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, userID string, opts ...Option) *Manager {
	t.Helper()
	m, err := New(userID, opts...)
	require.NoError(t, err)
	return m
}

// establish makes from hold a session with to, built from a fresh bundle of to.
func establish(t *testing.T, from, to *Manager) {
	t.Helper()
	ctx := context.Background()
	bundle, err := to.CreatePreKeyBundle(ctx)
	require.NoError(t, err)
	require.NoError(t, from.ProcessPreKeyBundle(ctx, bundle, to.Address()))
}

func TestNew(t *testing.T) {
	m := newManager(t, "alice", WithDeviceID(3))
	assert.Equal(t, "alice", m.UserID())
	assert.Equal(t, session.NewAddress("alice", 3), m.Address())
	assert.LessOrEqual(t, m.RegistrationID(), uint32(65535))
	assert.Len(t, m.IdentityKey(), 32)

	fp, err := m.Fingerprint()
	require.NoError(t, err)
	assert.Len(t, fp, 35)

	_, err = New("")
	assert.ErrorIs(t, err, common.ErrBadInput)
}

func TestAliceBobScenario(t *testing.T) {
	ctx := context.Background()
	alice := newManager(t, "alice")
	bob := newManager(t, "bob")

	establish(t, alice, bob)

	ok, err := alice.HasSession(ctx, bob.Address())
	require.NoError(t, err)
	assert.True(t, ok)

	ciphertext, err := alice.EncryptMessage(ctx, bob.Address(), []byte("hi"))
	require.NoError(t, err)

	plaintext, kind, err := bob.decrypt(ctx, alice.Address(), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(plaintext))
	assert.Equal(t, session.PreKeyMessageType, kind)

	ok, err = bob.HasSession(ctx, alice.Address())
	require.NoError(t, err)
	assert.True(t, ok, "first message creates the responder session")

	reply, err := bob.EncryptMessage(ctx, alice.Address(), []byte("hello alice"))
	require.NoError(t, err)
	plaintext, err = alice.DecryptMessage(ctx, bob.Address(), reply)
	require.NoError(t, err)
	assert.Equal(t, "hello alice", string(plaintext))
}

func TestDecryptUsesSessionPathForEstablishedSessions(t *testing.T) {
	ctx := context.Background()
	alice := newManager(t, "alice")
	bob := newManager(t, "bob")
	establish(t, alice, bob)

	first, err := alice.EncryptMessage(ctx, bob.Address(), []byte("one"))
	require.NoError(t, err)
	_, err = bob.DecryptMessage(ctx, alice.Address(), first)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ct, err := bob.EncryptMessage(ctx, alice.Address(), []byte(fmt.Sprintf("bob %d", i)))
		require.NoError(t, err)
		pt, kind, err := alice.decrypt(ctx, bob.Address(), ct)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("bob %d", i), string(pt))
		assert.Equal(t, session.SignalMessageType, kind)
	}

	ct, err := alice.EncryptMessage(ctx, bob.Address(), []byte("two"))
	require.NoError(t, err)
	pt, kind, err := bob.decrypt(ctx, alice.Address(), ct)
	require.NoError(t, err)
	assert.Equal(t, "two", string(pt))
	assert.Equal(t, session.SignalMessageType, kind)
}

func TestEncryptWithoutSession(t *testing.T) {
	alice := newManager(t, "alice")
	bob := newManager(t, "bob")

	_, err := alice.EncryptMessage(context.Background(), bob.Address(), []byte("hi"))
	assert.ErrorIs(t, err, common.ErrNoSession)

	ok, err := alice.HasSession(context.Background(), bob.Address())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecryptGarbage(t *testing.T) {
	alice := newManager(t, "alice")
	bob := newManager(t, "bob")

	for _, ct := range [][]byte{nil, []byte("not a message"), {0x32, '{', '}'}, {0x33, '{', '}'}} {
		_, err := bob.DecryptMessage(context.Background(), alice.Address(), ct)
		assert.ErrorIs(t, err, common.ErrDecryption)
	}
}

func TestDecryptForgedHeaderBeforeReply(t *testing.T) {
	ctx := context.Background()
	alice := newManager(t, "alice")
	bob := newManager(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(ctx)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(ctx, bundle, bob.Address()))

	// the signed prekey is alice's current remote ratchet key, but she has no receiving chain yet
	forged, err := (&session.SignalMessage{
		Header:     doubleratchet.Header{RatchetPub: bundle.SignedPreKey, N: 0},
		Ciphertext: make([]byte, 64),
	}).Serialize()
	require.NoError(t, err)

	var decryptErr error
	require.NotPanics(t, func() {
		_, decryptErr = alice.DecryptMessage(ctx, bob.Address(), forged)
	})
	assert.ErrorIs(t, decryptErr, common.ErrDecryption)
	assert.ErrorIs(t, decryptErr, doubleratchet.ErrNoReceivingChain)

	// the session is untouched
	ct, err := alice.EncryptMessage(ctx, bob.Address(), []byte("hi"))
	require.NoError(t, err)
	pt, err := bob.DecryptMessage(ctx, alice.Address(), ct)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(pt))
}

func TestCreatePreKeyBundle(t *testing.T) {
	ctx := context.Background()
	bob := newManager(t, "bob", WithIDAllocator(NewSequentialIDs(100)))

	bundle, err := bob.CreatePreKeyBundle(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint32(100), bundle.PreKeyID)
	assert.Equal(t, uint32(101), bundle.SignedPreKeyID)
	assert.Equal(t, uint32(102), bundle.KyberPreKeyID)
	assert.Equal(t, bob.RegistrationID(), bundle.RegistrationID)
	assert.Equal(t, bob.Address().DeviceID, bundle.DeviceID)
	assert.True(t, bundle.IdentityKey.Equals(bob.IdentityKey()))

	assert.NoError(t, signer_schnorr.Verify(bundle.IdentityKey, bundle.SignedPreKey.Serialize(), bundle.SignedPreKeySignature))
	assert.NoError(t, signer_schnorr.Verify(bundle.IdentityKey, bundle.KyberPreKey.Serialize(), bundle.KyberPreKeySignature))
	assert.NoError(t, ValidatePreKeyBundle(bundle))

	_, err = bob.Stores().PreKeys.LoadPreKey(ctx, bundle.PreKeyID)
	assert.NoError(t, err)
	_, err = bob.Stores().SignedPreKeys.LoadSignedPreKey(ctx, bundle.SignedPreKeyID)
	assert.NoError(t, err)
	_, err = bob.Stores().KyberPreKeys.LoadKyberPreKey(ctx, bundle.KyberPreKeyID)
	assert.NoError(t, err)
}

func TestCreatePreKeyBundleSelfCheckFailure(t *testing.T) {
	bob := newManager(t, "bob")
	bob.sign = func(key_ed25519.PrivateKey, []byte) ([]byte, error) {
		return make([]byte, 64), nil
	}

	bundle, err := bob.CreatePreKeyBundle(context.Background())
	assert.ErrorIs(t, err, common.ErrSignatureVerification)
	assert.Nil(t, bundle)
}

func TestGenerateKyberPreKeySelfCheckFailure(t *testing.T) {
	ctx := context.Background()
	bob := newManager(t, "bob")
	bob.sign = func(key_ed25519.PrivateKey, []byte) ([]byte, error) {
		return make([]byte, 64), nil
	}

	rec, err := bob.GenerateKyberPreKey(ctx, bob.identity, 7)
	assert.ErrorIs(t, err, common.ErrSignatureVerification)
	assert.Nil(t, rec)

	_, err = bob.Stores().KyberPreKeys.LoadKyberPreKey(ctx, 7)
	assert.ErrorIs(t, err, common.ErrNotFound, "a failed key is not stored")
}

func TestValidatePreKeyBundle(t *testing.T) {
	bob := newManager(t, "bob")
	bundle, err := bob.CreatePreKeyBundle(context.Background())
	require.NoError(t, err)
	eveKey := newManager(t, "eve").IdentityKey()

	tests := []struct {
		name    string
		mutate  func(b *session.PreKeyBundle)
		wantErr error
	}{
		{"valid", func(*session.PreKeyBundle) {}, nil},
		{"corrupted signature byte", func(b *session.PreKeyBundle) { b.SignedPreKeySignature[10] ^= 0xFF }, common.ErrSignatureVerification},
		{"foreign identity", func(b *session.PreKeyBundle) { b.IdentityKey = eveKey }, common.ErrSignatureVerification},
		{"swapped signed prekey", func(b *session.PreKeyBundle) { b.SignedPreKey = b.PreKey }, common.ErrSignatureVerification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := *bundle
			b.SignedPreKeySignature = append([]byte(nil), bundle.SignedPreKeySignature...)
			tt.mutate(&b)
			err := ValidatePreKeyBundle(&b)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	assert.ErrorIs(t, ValidatePreKeyBundle(nil), common.ErrBadInput)
}

func TestProcessPreKeyBundleFailureKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	alice := newManager(t, "alice")
	bob := newManager(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(ctx)
	require.NoError(t, err)
	bundle.SignedPreKeySignature[0] ^= 0x01

	err = alice.ProcessPreKeyBundle(ctx, bundle, bob.Address())
	assert.ErrorIs(t, err, common.ErrHandshake)

	saved, err := alice.Stores().Identities.GetIdentity(ctx, bob.Address())
	require.NoError(t, err)
	assert.True(t, saved.Equals(bob.IdentityKey()))

	ok, err := alice.HasSession(ctx, bob.Address())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessPreKeyBundleUntrusted(t *testing.T) {
	ctx := context.Background()
	alice := newManager(t, "alice", WithStores(MemoryStores(store.TrustOnFirstUse)))
	bob := newManager(t, "bob")
	impostor := newManager(t, "bob")

	establish(t, alice, bob)

	bundle, err := impostor.CreatePreKeyBundle(ctx)
	require.NoError(t, err)
	err = alice.ProcessPreKeyBundle(ctx, bundle, bob.Address())
	assert.ErrorIs(t, err, common.ErrHandshake)
	assert.ErrorIs(t, err, session.ErrUntrustedIdentity)
}

func TestOneTimePreKeyConsumed(t *testing.T) {
	ctx := context.Background()
	alice := newManager(t, "alice")
	bob := newManager(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(ctx)
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(ctx, bundle, bob.Address()))

	ct, err := alice.EncryptMessage(ctx, bob.Address(), []byte("hi"))
	require.NoError(t, err)
	_, err = bob.DecryptMessage(ctx, alice.Address(), ct)
	require.NoError(t, err)

	_, err = bob.Stores().PreKeys.LoadPreKey(ctx, bundle.PreKeyID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	// signed and kyber prekeys stay
	_, err = bob.Stores().SignedPreKeys.LoadSignedPreKey(ctx, bundle.SignedPreKeyID)
	assert.NoError(t, err)
	_, err = bob.Stores().KyberPreKeys.LoadKyberPreKey(ctx, bundle.KyberPreKeyID)
	assert.NoError(t, err)
}

func TestKyberPreKeyCannotBeDropped(t *testing.T) {
	ctx := context.Background()
	alice := newManager(t, "alice")
	bob := newManager(t, "bob")

	bundle, err := bob.CreatePreKeyBundle(ctx)
	require.NoError(t, err)
	signed, err := bob.Stores().SignedPreKeys.LoadSignedPreKey(ctx, bundle.SignedPreKeyID)
	require.NoError(t, err)
	require.NotNil(t, signed.KyberPreKeyID)
	assert.Equal(t, bundle.KyberPreKeyID, *signed.KyberPreKeyID)

	stripped := *bundle
	stripped.KyberPreKeyID = 0
	stripped.KyberPreKey = nil
	stripped.KyberPreKeySignature = nil
	require.NoError(t, alice.ProcessPreKeyBundle(ctx, &stripped, bob.Address()))

	ct, err := alice.EncryptMessage(ctx, bob.Address(), []byte("hi"))
	require.NoError(t, err)
	_, err = bob.DecryptMessage(ctx, alice.Address(), ct)
	assert.ErrorIs(t, err, common.ErrDecryption)
	assert.ErrorIs(t, err, session.ErrInvalidMessage)

	ok, err := bob.HasSession(ctx, alice.Address())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGeneratePreKeys(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, "alice")

	records, err := m.GeneratePreKeys(ctx, 7, 5)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, uint32(7+i), rec.ID)
		stored, err := m.Stores().PreKeys.LoadPreKey(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.KeyPair, stored.KeyPair)
	}

	records, err = m.GeneratePreKeys(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = m.GeneratePreKeys(ctx, 1, -1)
	assert.ErrorIs(t, err, common.ErrBadInput)
}

func TestConcurrentEncryptSamePeer(t *testing.T) {
	ctx := context.Background()
	alice := newManager(t, "alice")
	bob := newManager(t, "bob")
	establish(t, alice, bob)

	// finish the handshake so both directions use session messages
	ct, err := alice.EncryptMessage(ctx, bob.Address(), []byte("hi"))
	require.NoError(t, err)
	_, err = bob.DecryptMessage(ctx, alice.Address(), ct)
	require.NoError(t, err)
	ct, err = bob.EncryptMessage(ctx, alice.Address(), []byte("hey"))
	require.NoError(t, err)
	_, err = alice.DecryptMessage(ctx, bob.Address(), ct)
	require.NoError(t, err)

	const n = 20
	out := make([][]byte, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := alice.EncryptMessage(ctx, bob.Address(), []byte(fmt.Sprintf("msg %d", i)))
			assert.NoError(t, err)
			out[i] = c
		}(i)
	}
	wg.Wait()

	for i := n - 1; i >= 0; i-- {
		pt, err := bob.DecryptMessage(ctx, alice.Address(), out[i])
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("msg %d", i), string(pt))
	}
}

func TestIDAllocators(t *testing.T) {
	seen := map[uint32]bool{}
	for i := 0; i < 100; i++ {
		id, err := RandomIDs{}.NextID()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, id, uint32(1))
		assert.LessOrEqual(t, id, uint32(0xFFFFFF))
		seen[id] = true
	}
	assert.Greater(t, len(seen), 90)

	seq := NewSequentialIDs(5)
	for want := uint32(5); want < 10; want++ {
		got, err := seq.NextID()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
