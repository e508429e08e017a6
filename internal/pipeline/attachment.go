package pipeline

import (
	"sync/atomic"

	"l2broker/internal/book"
)

// Attachment is the piece of a subscription's state a consumer may read
// concurrently with the owning Unit's loop mutating it. The registrar
// allocates one when a key's refcount goes from 0 to 1, shares it with
// every later Handle for that key, and hands it straight back inside a
// Handle, before the unit has even seen the SubscribeIntent — this is what
// lets Handle.Book be valid immediately: the book's own seq-lock
// Version/Snapshot is what makes early reads yield ok == false rather than
// racing the unit. Book itself is already safe for concurrent access via
// its seq-lock; state is the one other field a consumer might poll, so it
// gets its own atomic cell rather than sharing the subscription struct the unit
// owns outright.
type Attachment struct {
	Book *book.Book

	state atomic.Uint32
}

// NewAttachment allocates an idle attachment around a fresh book.
func NewAttachment() *Attachment {
	return &Attachment{Book: book.New()}
}

// State reports the subscription's current position in the unit's state
// machine. Safe to call from any goroutine.
func (a *Attachment) State() State {
	return State(a.state.Load())
}

func (a *Attachment) setState(s State) {
	a.state.Store(uint32(s))
}
