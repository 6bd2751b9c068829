package manager

import (
	"crypto/rand"
	"math/big"
	"sync/atomic"

	"signal-sessions/configs"
)

// IDAllocator hands out numeric ids for prekeys, signed prekeys and kyber prekeys.
type IDAllocator interface {
	NextID() (uint32, error)
}

// RandomIDs draws ids uniformly from [1, configs.MaxPreKeyID]. Collisions are possible and
// overwrite the earlier key.
type RandomIDs struct{}

func (RandomIDs) NextID() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(configs.MaxPreKeyID)))
	if err != nil {
		return 0, err
	}
	return uint32(n.Int64()) + 1, nil
}

// SequentialIDs never repeats an id within one manager.
type SequentialIDs struct {
	next atomic.Uint32
}

func NewSequentialIDs(start uint32) *SequentialIDs {
	s := &SequentialIDs{}
	s.next.Store(start)
	return s
}

func (s *SequentialIDs) NextID() (uint32, error) {
	return s.next.Add(1) - 1, nil
}

func newRegistrationID() (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<16))
	if err != nil {
		return 0, err
	}
	return uint32(n.Int64()), nil
}
