package registry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"signal-sessions/common"
	"signal-sessions/configs"
	"signal-sessions/manager"
	"signal-sessions/prekeypool"
	"signal-sessions/protocol/session"
	"signal-sessions/store"

	"github.com/sirupsen/logrus"
)

// user is one registered identity and, when pooling is enabled, its bundle pool.
type user struct {
	manager *manager.Manager
	pool    *prekeypool.Pool
}

// Registry maps user ids to their protocol managers for a single-process server.
type Registry struct {
	cfg    configs.Config
	logger logrus.FieldLogger
	policy store.TrustPolicy

	mu     sync.RWMutex
	users  map[string]*user
	closed bool
}

type Option func(*Registry)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithTrustPolicy(policy store.TrustPolicy) Option {
	return func(r *Registry) { r.policy = policy }
}

func New(cfg configs.Config, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrBadInput, err)
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	r := &Registry{
		cfg:    cfg,
		logger: discard,
		policy: store.TrustOnFirstUse,
		users:  make(map[string]*user),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Registry) idAllocator() manager.IDAllocator {
	if r.cfg.IDPolicy == configs.IDPolicySequential {
		return manager.NewSequentialIDs(1)
	}
	return manager.RandomIDs{}
}

// Register creates a manager for userID and returns its first bundle.
func (r *Registry) Register(ctx context.Context, userID string) (*session.PreKeyBundle, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", common.ErrBadInput)
	}
	r.mu.RLock()
	_, exists := r.users[userID]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", common.ErrUserExists, userID)
	}

	log := r.logger.WithField("user", userID)
	m, err := manager.New(userID,
		manager.WithDeviceID(r.cfg.DeviceID),
		manager.WithIDAllocator(r.idAllocator()),
		manager.WithStores(manager.MemoryStores(r.policy)),
		manager.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	u := &user{manager: m}
	if r.cfg.PoolEnabled {
		pool, err := prekeypool.New(m,
			prekeypool.WithSize(r.cfg.PoolSize),
			prekeypool.WithMinSize(r.cfg.MinPoolSize),
			prekeypool.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}
		if err := pool.Initialize(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		u.pool = pool
	}

	r.mu.Lock()
	if _, exists := r.users[userID]; exists || r.closed {
		r.mu.Unlock()
		if u.pool != nil {
			u.pool.Close()
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", common.ErrUserExists, userID)
		}
		return nil, fmt.Errorf("registry closed")
	}
	r.users[userID] = u
	r.mu.Unlock()

	log.Info("registered user")
	return r.bundle(ctx, u)
}

func (r *Registry) lookup(userID string) (*user, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", common.ErrNotFound, userID)
	}
	return u, nil
}

func (r *Registry) Get(userID string) (*manager.Manager, error) {
	u, err := r.lookup(userID)
	if err != nil {
		return nil, err
	}
	return u.manager, nil
}

// Bundle hands out a fresh bundle for userID, from the pool when one is running.
func (r *Registry) Bundle(ctx context.Context, userID string) (*session.PreKeyBundle, error) {
	u, err := r.lookup(userID)
	if err != nil {
		return nil, err
	}
	return r.bundle(ctx, u)
}

func (r *Registry) bundle(ctx context.Context, u *user) (*session.PreKeyBundle, error) {
	if u.pool != nil {
		return u.pool.GetPreKeyBundle()
	}
	return u.manager.CreatePreKeyBundle(ctx)
}

func (r *Registry) peer(peerID string) session.Address {
	return session.NewAddress(peerID, r.cfg.DeviceID)
}

// EstablishSession makes userID process the bundle published by peerID.
func (r *Registry) EstablishSession(ctx context.Context, userID, peerID string, bundle *session.PreKeyBundle) error {
	m, err := r.Get(userID)
	if err != nil {
		return err
	}
	if peerID == "" {
		return fmt.Errorf("%w: empty recipient id", common.ErrBadInput)
	}
	return m.ProcessPreKeyBundle(ctx, bundle, r.peer(peerID))
}

func (r *Registry) Send(ctx context.Context, senderID, recipientID string, plaintext []byte) ([]byte, error) {
	m, err := r.Get(senderID)
	if err != nil {
		return nil, err
	}
	return m.EncryptMessage(ctx, r.peer(recipientID), plaintext)
}

func (r *Registry) Receive(ctx context.Context, recipientID, senderID string, ciphertext []byte) ([]byte, error) {
	m, err := r.Get(recipientID)
	if err != nil {
		return nil, err
	}
	return m.DecryptMessage(ctx, r.peer(senderID), ciphertext)
}

func (r *Registry) Fingerprint(userID string) (string, error) {
	m, err := r.Get(userID)
	if err != nil {
		return "", err
	}
	return m.Fingerprint()
}

// Health reports the number of users and the last refill failure of each pool that has one.
type Health struct {
	Users      int               `json:"users"`
	PoolErrors map[string]string `json:"poolErrors,omitempty"`
}

func (h Health) OK() bool { return len(h.PoolErrors) == 0 }

func (r *Registry) Health() Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h := Health{Users: len(r.users)}
	for id, u := range r.users {
		if u.pool == nil {
			continue
		}
		if err := u.pool.Err(); err != nil {
			if h.PoolErrors == nil {
				h.PoolErrors = make(map[string]string)
			}
			h.PoolErrors[id] = err.Error()
		}
	}
	return h
}

// Users returns the registered ids in sorted order.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every pool and rejects further registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	users := r.users
	r.mu.Unlock()
	for _, u := range users {
		if u.pool != nil {
			u.pool.Close()
		}
	}
}
