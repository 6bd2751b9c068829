package prekeypool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"signal-sessions/common"
	"signal-sessions/configs"
	"signal-sessions/protocol/session"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultParallelism = 4
	errorsBuffer       = 16
)

// BundleSource creates one fresh bundle per call; *manager.Manager implements it.
type BundleSource interface {
	CreatePreKeyBundle(ctx context.Context) (*session.PreKeyBundle, error)
}

type entry struct {
	seq    uint64
	bundle *session.PreKeyBundle
}

// Pool keeps a standing supply of bundles. Withdrawals are oldest first and never wait for a refill.
type Pool struct {
	source      BundleSource
	size        int
	minSize     int
	parallelism int
	logger      logrus.FieldLogger

	mu       sync.Mutex
	entries  []entry
	nextSeq  uint64
	reserved int // bundles being generated, counted against size
	closed   bool

	refilling atomic.Bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	errs    chan error
	errMu   sync.Mutex
	lastErr error
}

type Option func(*Pool)

func WithSize(size int) Option {
	return func(p *Pool) { p.size = size }
}

func WithMinSize(minSize int) Option {
	return func(p *Pool) { p.minSize = minSize }
}

func WithParallelism(n int) Option {
	return func(p *Pool) { p.parallelism = n }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Pool) { p.logger = logger }
}

func New(source BundleSource, opts ...Option) (*Pool, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		source:      source,
		size:        configs.DefaultPoolSize,
		minSize:     configs.DefaultMinPoolSize,
		parallelism: defaultParallelism,
		ctx:         ctx,
		cancel:      cancel,
		errs:        make(chan error, errorsBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.logger = l
	}

	switch {
	case source == nil:
		cancel()
		return nil, fmt.Errorf("%w: nil bundle source", common.ErrBadInput)
	case p.size < 1:
		cancel()
		return nil, fmt.Errorf("%w: pool size %d", common.ErrBadInput, p.size)
	case p.minSize < 0 || p.minSize > p.size:
		cancel()
		return nil, fmt.Errorf("%w: min pool size %d not within [0, %d]", common.ErrBadInput, p.minSize, p.size)
	case p.parallelism < 1:
		p.parallelism = 1
	}
	return p, nil
}

// Initialize fills the pool up to its target size before returning.
func (p *Pool) Initialize(ctx context.Context) error {
	if err := p.fill(ctx); err != nil {
		return err
	}
	p.logger.WithField("size", p.Size()).Info("prekey pool initialized")
	return nil
}

// GetPreKeyBundle removes and returns the oldest bundle. Dropping below the low watermark
// starts a background refill.
func (p *Pool) GetPreKeyBundle() (*session.PreKeyBundle, error) {
	e, remaining, ok := p.withdraw()
	if remaining < p.minSize || !ok {
		p.triggerRefill()
	}
	if !ok {
		return nil, common.ErrPoolExhausted
	}
	p.logger.WithFields(logrus.Fields{"seq": e.seq, "remaining": remaining}).Debug("issued prekey bundle")
	return e.bundle, nil
}

func (p *Pool) withdraw() (entry, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return entry{}, 0, false
	}
	e := p.entries[0]
	p.entries[0] = entry{}
	p.entries = p.entries[1:]
	return e, len(p.entries), true
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Errors delivers refill failures. When nobody drains it, failures are still logged and kept by Err.
func (p *Pool) Errors() <-chan error {
	return p.errs
}

// Err returns the last refill failure, or nil once a later refill succeeded.
func (p *Pool) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.lastErr
}

// Wait blocks until the in-flight refill, if any, has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops any refill in progress and prevents new ones.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) triggerRefill() {
	if !p.refilling.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.refilling.Store(false)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.refilling.Store(false)
		p.report(p.fill(p.ctx))
	}()
}

func (p *Pool) report(err error) {
	if err != nil && errors.Is(err, context.Canceled) && p.ctx.Err() != nil {
		// closed while refilling
		return
	}

	p.errMu.Lock()
	p.lastErr = err
	p.errMu.Unlock()

	if err == nil {
		p.logger.WithField("size", p.Size()).Info("prekey pool refilled")
		return
	}
	p.logger.Errorf("prekey pool refill failed: %v", err)
	select {
	case p.errs <- err:
	default:
	}
}

// fill tops the pool up to its target size, including slots emptied by withdrawals made while
// it runs. Bundles created before a failure are kept.
func (p *Pool) fill(ctx context.Context) error {
	for {
		need := p.reserve()
		if need == 0 {
			return nil
		}
		bundles, err := p.generate(ctx, need)
		p.insert(bundles, need)
		if err != nil {
			return err
		}
	}
}

// reserve claims the slots not yet filled or claimed, so concurrent fills never overshoot size.
func (p *Pool) reserve() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	need := p.size - len(p.entries) - p.reserved
	if need <= 0 {
		return 0
	}
	p.reserved += need
	return need
}

func (p *Pool) generate(ctx context.Context, n int) ([]*session.PreKeyBundle, error) {
	bundles := make([]*session.PreKeyBundle, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			b, err := p.source.CreatePreKeyBundle(gctx)
			if err != nil {
				return err
			}
			bundles[i] = b
			return nil
		})
	}
	return bundles, g.Wait()
}

// insert releases a reservation of reserved slots and appends the bundles that were created.
func (p *Pool) insert(bundles []*session.PreKeyBundle, reserved int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserved -= reserved
	for _, b := range bundles {
		if b == nil {
			continue
		}
		p.entries = append(p.entries, entry{seq: p.nextSeq, bundle: b})
		p.nextSeq++
	}
}
