package relay

import (
	"context"
	"sync"

	"signal-sessions/common"
)

// Mailbox queues envelopes for recipients that are not connected.
type Mailbox interface {
	Push(ctx context.Context, env common.Envelope) error
	// Drain returns and removes every queued envelope for recipientID, oldest first.
	Drain(ctx context.Context, recipientID string) ([]common.Envelope, error)
	Close() error
}

type MemoryMailbox struct {
	mu     sync.Mutex
	queues map[string][]common.Envelope
}

func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{queues: make(map[string][]common.Envelope)}
}

func (m *MemoryMailbox) Push(_ context.Context, env common.Envelope) error {
	m.mu.Lock()
	m.queues[env.RecipientID] = append(m.queues[env.RecipientID], env)
	m.mu.Unlock()
	return nil
}

func (m *MemoryMailbox) Drain(_ context.Context, recipientID string) ([]common.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.queues[recipientID]
	delete(m.queues, recipientID)
	return out, nil
}

func (m *MemoryMailbox) Close() error { return nil }
