// Package bus abstracts the message transport agents use to exchange
// negotiation messages: point-to-point delivery into a bounded,
// per-agent inbox with timed receive.
package bus

import (
	"context"
	"errors"
	"time"

	"github.com/agentsched/unisched/model"
)

// ErrInboxClosed is returned by Receive once the inbox has been closed.
var ErrInboxClosed = errors.New("bus: inbox closed")

// ErrUnknownAddress is returned by Send when the destination has no
// registered inbox.
var ErrUnknownAddress = errors.New("bus: unknown destination address")

// Transport delivers point-to-point messages with per-agent inbox
// semantics and bounded receive.
type Transport interface {
	// Register creates (or replaces) the inbox for address and returns it.
	Register(address string) (*Inbox, error)
	// Deregister removes and closes address's inbox.
	Deregister(address string)
	// Send delivers msg to msg.To's inbox. InMemoryBus reports an
	// unknown address as ErrUnknownAddress and, when the inbox is full,
	// waits for room until the inbox closes or ctx is done; RedisBus
	// publishes without checking for a subscriber.
	Send(ctx context.Context, msg model.Message) error
	// Close shuts down the transport and all registered inboxes.
	Close() error
}

// Inbox is a single agent's bounded mailbox.
type Inbox struct {
	address string
	ch      chan model.Message
	done    chan struct{}
}

func newInbox(address string, capacity int) *Inbox {
	return &Inbox{
		address: address,
		ch:      make(chan model.Message, capacity),
		done:    make(chan struct{}),
	}
}

// Address returns the address this inbox was registered under.
func (ib *Inbox) Address() string { return ib.address }

// Receive waits up to timeout for the next message. It returns
// (msg, true, nil) on success, (zero, false, nil) on timeout, and
// (zero, false, ErrInboxClosed) once the inbox has been closed. A
// caller never blocks indefinitely: every wait carries a deadline.
func (ib *Inbox) Receive(ctx context.Context, timeout time.Duration) (model.Message, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ib.ch:
		if !ok {
			return model.Message{}, false, ErrInboxClosed
		}
		return msg, true, nil
	case <-timer.C:
		return model.Message{}, false, nil
	case <-ctx.Done():
		return model.Message{}, false, ctx.Err()
	case <-ib.done:
		return model.Message{}, false, ErrInboxClosed
	}
}

// TryReceive drains one message without blocking, if any is queued.
func (ib *Inbox) TryReceive() (model.Message, bool) {
	select {
	case msg, ok := <-ib.ch:
		if !ok {
			return model.Message{}, false
		}
		return msg, true
	default:
		return model.Message{}, false
	}
}

// close marks the inbox closed. The message channel itself is left open
// so a sender holding a stale inbox reference can never panic; Receive
// observes the done channel instead.
func (ib *Inbox) close() {
	select {
	case <-ib.done:
		// already closed
	default:
		close(ib.done)
	}
}
