package registrar

import (
	"sync/atomic"

	"l2broker/internal/book"
	"l2broker/internal/catalog"
	"l2broker/internal/pipeline"
	"l2broker/pkg/exception"
)

// maxSnapshotRetries bounds Read's seq-lock retry loop so a reader facing a
// pathologically busy writer gets NotReady back rather than spinning
// forever.
const maxSnapshotRetries = 8

// Metadata is a subscription's fixed scale and depth, resolved once the
// catalog knows the symbol (immediately after subscribe, since the
// catalog is built at startup, not discovered from the wire).
type Metadata struct {
	PriceExp int8
	QtyExp   int8
	Depth    uint8
}

// Handle is the consumer-facing RAII-style object a subscribe call
// returns: a shared, read-only reference to the book plus release
// semantics. Go has no destructors, so Release must be called explicitly
// (typically via defer) when the caller is done with the subscription.
type Handle struct {
	key   catalog.Key
	att   *pipeline.Attachment
	entry *entry
	reg   *Registrar

	released atomic.Bool
}

func newHandle(reg *Registrar, key catalog.Key, e *entry, att *pipeline.Attachment) *Handle {
	return &Handle{key: key, att: att, entry: e, reg: reg}
}

// Book returns the shared book. Callers must use its Snapshot/Version
// methods rather than assuming any data has arrived yet.
func (h *Handle) Book() *book.Book { return h.att.Book }

// State reports the subscription's current position in the owning unit's
// state machine.
func (h *Handle) State() pipeline.State { return h.att.State() }

// Ready reports whether the subscription has an acked, live feed. Metadata
// (price/qty exponents) lives on catalog.Symbol, fixed at registration
// time, so it needs no separate readiness callback from the unit.
func (h *Handle) Ready() bool { return h.att.State() == pipeline.Active }

// Read fills outBids/outAsks with a consistent snapshot of the book and
// returns the version it was taken at. It retries internally against a
// concurrent writer up to maxSnapshotRetries times; ok is false if every
// attempt landed mid-packet, or if the subscription has not reached Active
// yet (nothing has landed to read).
func (h *Handle) Read(outBids, outAsks *[book.Depth]book.Level) (version uint64, ok bool) {
	if h.att.State() != pipeline.Active {
		return 0, false
	}
	for i := 0; i < maxSnapshotRetries; i++ {
		if v, ok := h.att.Book.Snapshot(outBids, outAsks); ok {
			return v, true
		}
		h.reg.metrics.IncSeqlockRetry()
	}
	return 0, false
}

// Metadata returns the subscription's fixed price/qty exponents and book
// depth. Returns exception.ErrNotReady if the registrar has no catalog
// attached (test-only registrars built without one) or the symbol is
// unexpectedly absent from it.
func (h *Handle) Metadata() (Metadata, error) {
	if h.reg.registry == nil {
		return Metadata{}, exception.ErrNotReady
	}
	sym, ok := h.reg.registry.Symbol(h.key.Symbol)
	if !ok {
		return Metadata{}, exception.ErrNotReady
	}
	return Metadata{PriceExp: sym.PriceExp, QtyExp: sym.QtyExp, Depth: book.Depth}, nil
}

// Release decrements the registrar's refcount for this handle's key,
// posting UnsubscribeIntent on the last release. Safe to call more than
// once; only the first call has any effect.
func (h *Handle) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.reg.dropHandle(h.key, h.entry)
	}
}
