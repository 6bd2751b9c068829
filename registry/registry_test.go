package registry

import (
	"context"
	"sync"
	"testing"

	"signal-sessions/common"
	"signal-sessions/configs"
	"signal-sessions/protocol/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(pool bool) configs.Config {
	cfg := configs.Default()
	cfg.PoolEnabled = pool
	cfg.PoolSize = 4
	cfg.MinPoolSize = 1
	return cfg
}

func newRegistry(t *testing.T, cfg configs.Config) *Registry {
	t.Helper()
	r, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := configs.Default()
	cfg.IDPolicy = "dice"
	_, err := New(cfg)
	assert.ErrorIs(t, err, common.ErrBadInput)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, testConfig(true))

	bundle, err := r.Register(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, bundle.Verify())

	m, err := r.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, m.IdentityKey(), bundle.IdentityKey)

	_, err = r.Register(ctx, "alice")
	assert.ErrorIs(t, err, common.ErrUserExists)

	_, err = r.Register(ctx, "")
	assert.ErrorIs(t, err, common.ErrBadInput)

	_, err = r.Get("nobody")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = r.Bundle(ctx, "nobody")
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.Equal(t, []string{"alice"}, r.Users())
}

func TestConversation(t *testing.T) {
	for _, pool := range []bool{true, false} {
		name := "without pool"
		if pool {
			name = "with pool"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRegistry(t, testConfig(pool))

			_, err := r.Register(ctx, "alice")
			require.NoError(t, err)
			_, err = r.Register(ctx, "bob")
			require.NoError(t, err)

			bobBundle, err := r.Bundle(ctx, "bob")
			require.NoError(t, err)
			require.NoError(t, r.EstablishSession(ctx, "alice", "bob", bobBundle))

			ct, err := r.Send(ctx, "alice", "bob", []byte("hi bob"))
			require.NoError(t, err)
			kind, err := session.PeekType(ct)
			require.NoError(t, err)
			assert.Equal(t, session.PreKeyMessageType, kind)

			pt, err := r.Receive(ctx, "bob", "alice", ct)
			require.NoError(t, err)
			assert.Equal(t, "hi bob", string(pt))

			reply, err := r.Send(ctx, "bob", "alice", []byte("hi alice"))
			require.NoError(t, err)
			pt, err = r.Receive(ctx, "alice", "bob", reply)
			require.NoError(t, err)
			assert.Equal(t, "hi alice", string(pt))
		})
	}
}

func TestSendWithoutSession(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, testConfig(false))
	_, err := r.Register(ctx, "alice")
	require.NoError(t, err)

	_, err = r.Send(ctx, "alice", "bob", []byte("x"))
	assert.ErrorIs(t, err, common.ErrNoSession)

	_, err = r.Send(ctx, "carol", "bob", []byte("x"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = r.EstablishSession(ctx, "alice", "", nil)
	assert.ErrorIs(t, err, common.ErrBadInput)
}

func TestFingerprintAndHealth(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, testConfig(true))
	_, err := r.Register(ctx, "alice")
	require.NoError(t, err)

	fp, err := r.Fingerprint("alice")
	require.NoError(t, err)
	assert.Len(t, fp, 35)

	_, err = r.Fingerprint("bob")
	assert.ErrorIs(t, err, common.ErrNotFound)

	h := r.Health()
	assert.Equal(t, 1, h.Users)
	assert.True(t, h.OK())
}

func TestConcurrentRegisterSameUser(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, testConfig(false))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Register(ctx, "alice")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, common.ErrUserExists)
	}
	assert.Equal(t, 1, succeeded)
}

func TestRegisterAfterClose(t *testing.T) {
	r := newRegistry(t, testConfig(false))
	r.Close()
	_, err := r.Register(context.Background(), "alice")
	assert.Error(t, err)
}
