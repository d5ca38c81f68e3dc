package bus

import (
	"context"
	"sync"

	"github.com/agentsched/unisched/model"
)

// DefaultInboxCapacity bounds how many undelivered messages an inbox
// holds; once it is full, Send waits for room (or for the inbox to close
// or the context to end).
const DefaultInboxCapacity = 256

// InMemoryBus is the default Transport: a process-local map of channels,
// one per registered address.
type InMemoryBus struct {
	mu       sync.RWMutex
	inboxes  map[string]*Inbox
	capacity int
}

// NewInMemoryBus constructs a bus with the default inbox capacity.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		inboxes:  make(map[string]*Inbox),
		capacity: DefaultInboxCapacity,
	}
}

func (b *InMemoryBus) Register(address string) (*Inbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.inboxes[address]; ok {
		old.close()
	}
	ib := newInbox(address, b.capacity)
	b.inboxes[address] = ib
	return ib, nil
}

func (b *InMemoryBus) Deregister(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ib, ok := b.inboxes[address]; ok {
		ib.close()
		delete(b.inboxes, address)
	}
}

func (b *InMemoryBus) Send(ctx context.Context, msg model.Message) error {
	b.mu.RLock()
	ib, ok := b.inboxes[msg.To]
	b.mu.RUnlock()

	if !ok {
		return ErrUnknownAddress
	}

	select {
	case ib.ch <- msg:
		return nil
	case <-ib.done:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for addr, ib := range b.inboxes {
		ib.close()
		delete(b.inboxes, addr)
	}
	return nil
}
