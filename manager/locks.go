package manager

import (
	"sync"

	"signal-sessions/protocol/session"
)

// addressLocks serializes operations on the same peer address.
type addressLocks struct {
	mu    sync.Mutex
	locks map[session.Address]*addressLock
}

type addressLock struct {
	sync.Mutex
	refs int
}

func newAddressLocks() *addressLocks {
	return &addressLocks{locks: make(map[session.Address]*addressLock)}
}

func (l *addressLocks) lock(addr session.Address) (unlock func()) {
	l.mu.Lock()
	al, ok := l.locks[addr]
	if !ok {
		al = &addressLock{}
		l.locks[addr] = al
	}
	al.refs++
	l.mu.Unlock()

	al.Lock()
	return func() {
		al.Unlock()
		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.locks, addr)
		}
		l.mu.Unlock()
	}
}
