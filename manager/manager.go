package manager

import (
	"fmt"
	"io"
	"time"

	"signal-sessions/common"
	"signal-sessions/configs"
	"signal-sessions/crypto/key_ed25519"
	"signal-sessions/crypto/signer_schnorr"
	"signal-sessions/protocol/fingerprint"
	"signal-sessions/protocol/session"
	"signal-sessions/store"

	"github.com/sirupsen/logrus"
)

// Stores is the set of stores a Manager works against.
type Stores struct {
	Sessions      session.SessionStore
	Identities    session.IdentityKeyStore
	PreKeys       session.PreKeyStore
	SignedPreKeys session.SignedPreKeyStore
	KyberPreKeys  session.KyberPreKeyStore
}

// StoresFactory builds the stores once the identity is known.
type StoresFactory func(identity key_ed25519.Pair, registrationID uint32) Stores

// MemoryStores is the default StoresFactory.
func MemoryStores(policy store.TrustPolicy) StoresFactory {
	return func(identity key_ed25519.Pair, registrationID uint32) Stores {
		s := store.New(identity, registrationID, policy)
		return Stores{
			Sessions:      s.Sessions,
			Identities:    s.Identities,
			PreKeys:       s.PreKeys,
			SignedPreKeys: s.SignedPreKeys,
			KyberPreKeys:  s.KyberPreKeys,
		}
	}
}

// Manager owns one user's identity and stores and runs every protocol operation for that user.
type Manager struct {
	userID         string
	address        session.Address
	identity       key_ed25519.Pair
	registrationID uint32
	stores         Stores

	ids    IDAllocator
	logger logrus.FieldLogger
	now    func() time.Time
	sign   func(key_ed25519.PrivateKey, []byte) ([]byte, error)
	locks  *addressLocks
}

type options struct {
	deviceID uint32
	ids      IDAllocator
	logger   logrus.FieldLogger
	stores   StoresFactory
	now      func() time.Time
}

type Option func(*options)

func WithDeviceID(id uint32) Option {
	return func(o *options) { o.deviceID = id }
}

func WithIDAllocator(ids IDAllocator) Option {
	return func(o *options) { o.ids = ids }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

func WithStores(f StoresFactory) Option {
	return func(o *options) { o.stores = f }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New generates the identity key pair and registration id for userID, then builds its stores.
func New(userID string, opts ...Option) (*Manager, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", common.ErrBadInput)
	}

	o := options{
		deviceID: configs.DefaultDeviceID,
		ids:      RandomIDs{},
		stores:   MemoryStores(store.TrustAll),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.logger = l
	}

	identity, err := GenerateIdentityKeyPair()
	if err != nil {
		return nil, err
	}
	registrationID, err := newRegistrationID()
	if err != nil {
		return nil, fmt.Errorf("%w: registration id: %w", common.ErrPrimitive, err)
	}

	return &Manager{
		userID:         userID,
		address:        session.NewAddress(userID, o.deviceID),
		identity:       identity,
		registrationID: registrationID,
		stores:         o.stores(identity.Clone(), registrationID),
		ids:            o.ids,
		logger:         o.logger.WithField("user", userID),
		now:            o.now,
		sign:           signer_schnorr.Sign,
		locks:          newAddressLocks(),
	}, nil
}

func (m *Manager) UserID() string { return m.userID }

func (m *Manager) Address() session.Address { return m.address }

func (m *Manager) RegistrationID() uint32 { return m.registrationID }

func (m *Manager) IdentityKey() key_ed25519.PublicKey { return m.identity.Pub.Serialize() }

func (m *Manager) Stores() Stores { return m.stores }

// Fingerprint is the displayable safety number of the identity key.
func (m *Manager) Fingerprint() (string, error) {
	fp, err := fingerprint.Fingerprint(m.identity.Pub, []byte(m.userID))
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrPrimitive, err)
	}
	return fingerprint.Display(fp), nil
}
