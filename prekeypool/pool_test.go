package prekeypool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signal-sessions/common"
	"signal-sessions/manager"
	"signal-sessions/protocol/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// fakeSource stamps bundles with increasing prekey ids.
type fakeSource struct {
	mu      sync.Mutex
	next    uint32
	calls   int
	fail    error
	gate    chan struct{}
	entered chan struct{}
}

func (s *fakeSource) CreatePreKeyBundle(ctx context.Context) (*session.PreKeyBundle, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	id := s.next
	s.next++
	return &session.PreKeyBundle{PreKeyID: id}, nil
}

func (s *fakeSource) setGate(gate chan struct{}) {
	s.mu.Lock()
	s.gate = gate
	s.entered = make(chan struct{}, 1)
	s.mu.Unlock()
}

func (s *fakeSource) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newPool(t *testing.T, src BundleSource, opts ...Option) *Pool {
	t.Helper()
	p, err := New(src, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	require.NoError(t, p.Initialize(context.Background()))
	return p
}

func TestNewValidation(t *testing.T) {
	src := &fakeSource{}
	tests := []struct {
		name string
		src  BundleSource
		opts []Option
	}{
		{"nil source", nil, nil},
		{"zero size", src, []Option{WithSize(0)}},
		{"watermark above size", src, []Option{WithSize(5), WithMinSize(6)}},
		{"negative watermark", src, []Option{WithMinSize(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.src, tt.opts...)
			assert.ErrorIs(t, err, common.ErrBadInput)
		})
	}
}

func TestInitializeFillsToSize(t *testing.T) {
	src := &fakeSource{}
	p := newPool(t, src, WithSize(25), WithMinSize(5))
	assert.Equal(t, 25, p.Size())
	assert.Equal(t, 25, src.callCount())
}

func TestFIFOWithdrawal(t *testing.T) {
	src := &fakeSource{}
	p := newPool(t, src, WithSize(10), WithMinSize(0), WithParallelism(1))

	for want := uint32(0); want < 10; want++ {
		b, err := p.GetPreKeyBundle()
		require.NoError(t, err)
		assert.Equal(t, want, b.PreKeyID)
	}
}

func TestEmptyPoolFailsFast(t *testing.T) {
	src := &fakeSource{}
	p := newPool(t, src, WithSize(1), WithMinSize(0))

	gate := make(chan struct{})
	defer close(gate)
	src.setGate(gate)

	_, err := p.GetPreKeyBundle()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.GetPreKeyBundle()
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, common.ErrPoolExhausted)
	case <-time.After(time.Second):
		t.Fatal("withdrawal from an empty pool blocked")
	}
}

func TestLowWatermarkRefill(t *testing.T) {
	src := &fakeSource{}
	p := newPool(t, src, WithSize(10), WithMinSize(3))

	gate := make(chan struct{})
	src.setGate(gate)

	for i := 0; i < 7; i++ {
		_, err := p.GetPreKeyBundle()
		require.NoError(t, err)
	}
	assert.Equal(t, 3, p.Size(), "no refill while at the watermark")

	// this withdrawal drops below the watermark and must return while the refill is blocked
	_, err := p.GetPreKeyBundle()
	require.NoError(t, err)
	<-src.entered
	assert.Equal(t, 2, p.Size())

	close(gate)
	p.Wait()
	assert.Equal(t, 10, p.Size())
	assert.NoError(t, p.Err())
}

func TestRefillSkippedWhileInFlight(t *testing.T) {
	src := &fakeSource{}
	p := newPool(t, src, WithSize(10), WithMinSize(5), WithParallelism(1))

	gate := make(chan struct{})
	src.setGate(gate)

	for i := 0; i < 6; i++ {
		_, err := p.GetPreKeyBundle()
		require.NoError(t, err)
	}
	<-src.entered

	for i := 0; i < 2; i++ {
		_, err := p.GetPreKeyBundle()
		require.NoError(t, err)
	}
	select {
	case <-src.entered:
		t.Fatal("a second refill started while one was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	p.Wait()
	assert.Equal(t, 10, p.Size(), "the running refill also replaces bundles withdrawn meanwhile")
	assert.Equal(t, 18, src.callCount(), "10 initial, 6 then 2 refilled")
}

func TestInitializeDuringRefillDiscardsNothing(t *testing.T) {
	src := &fakeSource{}
	p, err := New(src, WithSize(4), WithMinSize(1))
	require.NoError(t, err)
	t.Cleanup(p.Close)

	gate := make(chan struct{})
	src.setGate(gate)

	// withdrawing from the empty pool starts a refill that claims every slot
	_, err = p.GetPreKeyBundle()
	require.ErrorIs(t, err, common.ErrPoolExhausted)
	<-src.entered

	require.NoError(t, p.Initialize(context.Background()))

	close(gate)
	p.Wait()
	assert.Equal(t, 4, p.Size())
	assert.Equal(t, 4, src.callCount(), "no bundle was generated only to be dropped")
}

func TestRefillFailureIsReported(t *testing.T) {
	src := &fakeSource{}
	p := newPool(t, src, WithSize(4), WithMinSize(4))
	src.setFail(errBoom)

	b, err := p.GetPreKeyBundle()
	require.NoError(t, err, "a failing refill never affects the withdrawal")
	assert.NotNil(t, b)

	p.Wait()
	select {
	case err := <-p.Errors():
		assert.ErrorIs(t, err, errBoom)
	case <-time.After(time.Second):
		t.Fatal("refill error was not reported")
	}
	assert.ErrorIs(t, p.Err(), errBoom)
	assert.Equal(t, 3, p.Size())

	src.setFail(nil)
	_, err = p.GetPreKeyBundle()
	require.NoError(t, err)
	p.Wait()
	assert.NoError(t, p.Err())
	assert.Equal(t, 4, p.Size())
}

func TestConcurrentWithdrawalsAreDistinct(t *testing.T) {
	src := &fakeSource{}
	p := newPool(t, src, WithSize(100), WithMinSize(20))

	const n = 50
	ids := make(chan uint32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := p.GetPreKeyBundle()
			if assert.NoError(t, err) {
				ids <- b.PreKeyID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint32]bool{}
	for id := range ids {
		assert.False(t, seen[id], "bundle %d issued twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, 50, p.Size())
}

func TestCloseStopsRefill(t *testing.T) {
	src := &fakeSource{}
	p, err := New(src, WithSize(2), WithMinSize(2))
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))

	src.setGate(make(chan struct{}))
	_, err = p.GetPreKeyBundle()
	require.NoError(t, err)
	<-src.entered

	p.Close()
	assert.NoError(t, p.Err())
	_, err = p.GetPreKeyBundle()
	require.NoError(t, err)
	_, err = p.GetPreKeyBundle()
	assert.ErrorIs(t, err, common.ErrPoolExhausted)
}

func TestPoolWithManager(t *testing.T) {
	ctx := context.Background()
	bob, err := manager.New("bob")
	require.NoError(t, err)
	alice, err := manager.New("alice")
	require.NoError(t, err)

	p := newPool(t, bob, WithSize(5), WithMinSize(2))

	seen := map[uint32]bool{}
	for i := 0; i < 5; i++ {
		b, err := p.GetPreKeyBundle()
		require.NoError(t, err)
		require.NoError(t, manager.ValidatePreKeyBundle(b))
		assert.False(t, seen[b.PreKeyID])
		seen[b.PreKeyID] = true
	}

	p.Wait()
	b, err := p.GetPreKeyBundle()
	require.NoError(t, err)
	require.NoError(t, alice.ProcessPreKeyBundle(ctx, b, bob.Address()))
	ct, err := alice.EncryptMessage(ctx, bob.Address(), []byte("from the pool"))
	require.NoError(t, err)
	pt, err := bob.DecryptMessage(ctx, alice.Address(), ct)
	require.NoError(t, err)
	assert.Equal(t, "from the pool", string(pt))
}
