package pipeline

import (
	"sync/atomic"

	"l2broker/internal/catalog"
	"l2broker/pkg/exception"
)

// IntentKind distinguishes the two control messages a registrar posts into
// a unit's inbox.
type IntentKind uint8

const (
	// SubscribeIntent asks the unit to attach and activate key's book.
	SubscribeIntent IntentKind = iota
	// UnsubscribeIntent asks the unit to detach key's book.
	UnsubscribeIntent
	// ShutdownIntent asks the unit's Run loop to exit.
	ShutdownIntent
)

// Intent is one control message posted by the registrar. Attachment is set
// only on SubscribeIntent, carrying the book the registrar already
// allocated and handed to the caller's Handle before this intent was even
// posted.
type Intent struct {
	Kind       IntentKind
	Key        catalog.Key
	Attachment *Attachment
}

// Inbox is the bounded, non-blocking intent queue a unit drains at the top
// of every loop iteration.
type Inbox struct {
	ch     chan Intent
	closed uint32
}

// NewInbox allocates an inbox with room for capacity pending intents.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &Inbox{ch: make(chan Intent, capacity)}
}

// TryPost enqueues an intent without blocking the registrar's caller.
func (ib *Inbox) TryPost(i Intent) error {
	if atomic.LoadUint32(&ib.closed) != 0 {
		return exception.ErrShutdown
	}
	select {
	case ib.ch <- i:
		return nil
	default:
		return exception.ErrInboxFull
	}
}

// Close stops the inbox from accepting further intents.
func (ib *Inbox) Close() {
	if atomic.CompareAndSwapUint32(&ib.closed, 0, 1) {
		close(ib.ch)
	}
}

// Chan exposes the receive side for a unit's select loop.
func (ib *Inbox) Chan() <-chan Intent { return ib.ch }
