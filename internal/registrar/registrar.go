// Package registrar implements the subscription broker: reference-counted
// subscribe/release over a stable per-key unit assignment, posting
// SubscribeIntent/UnsubscribeIntent across the 0→1 and N→0 refcount edges.
// Each key gets its own spinlock rather than one global lock, so one key's
// subscribe never waits behind another key's.
package registrar

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"l2broker/internal/catalog"
	"l2broker/internal/obs"
	"l2broker/internal/pipeline"
	"l2broker/pkg/exception"
)

// UnitSink is the part of pipeline.Unit a Registrar drives, narrowed to
// the one thing subscribe/drop_handle need from it. Exported so a
// composition root outside this package can build a Registrar directly
// from []*pipeline.Unit.
type UnitSink interface {
	Inbox() *pipeline.Inbox
}

// Auditor receives subscribe/unsubscribe transitions after the per-key
// spinlock has already been released, so a slow cold-path write never
// blocks another key's hot-path subscribe/drop_handle.
type Auditor interface {
	RecordSubscribe(key catalog.Key)
	RecordUnsubscribe(key catalog.Key)
}

type entry struct {
	lock     spinlock
	refcount int64
	att      *pipeline.Attachment
	unit     UnitSink
}

// Registrar is the broker's cross-core shared state: a key table guarded
// by fine-grained per-key spinlocks, never held across I/O.
type Registrar struct {
	units    []UnitSink
	audit    Auditor
	registry *catalog.Registry
	metrics  *obs.Metrics

	mu      sync.Mutex
	entries map[catalog.Key]*entry
}

// New constructs a Registrar driving units against registry. audit and
// metrics may be nil. registry may also be nil, in which case Subscribe
// skips the known-symbol check (used by tests that drive fake units
// directly).
func New(units []UnitSink, registry *catalog.Registry, audit Auditor, metrics *obs.Metrics) *Registrar {
	return &Registrar{units: units, audit: audit, registry: registry, metrics: metrics, entries: make(map[catalog.Key]*entry)}
}

// Assignment returns the deterministic unit index owning key, so recovery
// routes a key to the same core every time.
func (r *Registrar) Assignment(key catalog.Key) int {
	return assignmentIndex(key, len(r.units))
}

func assignmentIndex(key catalog.Key, n int) int {
	if n <= 0 {
		return 0
	}
	var buf [7]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(key.Exchange))
	binary.BigEndian.PutUint32(buf[2:6], uint32(key.Symbol))
	buf[6] = byte(key.Product)

	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	return int(h.Sum64() % uint64(n))
}

// acquireEntry returns the entry for key with its spinlock already held,
// creating an idle one under r.mu if none exists yet. Looking the entry up
// in the map and locking it are two separate steps, so a concurrent
// dropHandle can delete-to-zero the entry this call just looked up before
// this call wins the spinlock; acquireEntry re-checks map membership once
// it holds the lock and retries against whatever is actually there if the
// entry it found is no longer the live one for key. This is what stops a
// racing Subscribe from resurrecting an entry dropHandle is in the middle
// of removing.
func (r *Registrar) acquireEntry(key catalog.Key) *entry {
	for {
		r.mu.Lock()
		e, ok := r.entries[key]
		if !ok {
			idx := r.Assignment(key)
			if idx >= len(r.units) {
				r.mu.Unlock()
				return nil
			}
			e = &entry{unit: r.units[idx]}
			r.entries[key] = e
		}
		r.mu.Unlock()

		e.lock.Lock()
		r.mu.Lock()
		current, live := r.entries[key]
		r.mu.Unlock()
		if live && current == e {
			return e
		}
		e.lock.Unlock()
	}
}

// Subscribe atomically increments key's refcount; on 0→1, allocates the
// book and posts SubscribeIntent. Returns a
// Handle whose Book is valid immediately — the book's own seq-lock, not
// this call, is what tells a reader whether any data has landed yet.
func (r *Registrar) Subscribe(key catalog.Key) (*Handle, error) {
	if len(r.units) == 0 {
		return nil, exception.ErrNoSuchExchange
	}
	if r.registry != nil {
		if _, ok := r.registry.Symbol(key.Symbol); !ok {
			return nil, exception.ErrNoSuchExchange
		}
	}
	e := r.acquireEntry(key)
	if e == nil {
		return nil, exception.ErrNoSuchExchange
	}

	if e.refcount == 0 {
		e.att = pipeline.NewAttachment()
		err := e.unit.Inbox().TryPost(pipeline.Intent{
			Kind:       pipeline.SubscribeIntent,
			Key:        key,
			Attachment: e.att,
		})
		if err != nil {
			e.lock.Unlock()
			if err == exception.ErrInboxFull {
				r.metrics.IncInboxFull()
			}
			return nil, err
		}
		r.metrics.IncSubscribe()
	}
	e.refcount++
	att := e.att
	e.lock.Unlock()

	if r.audit != nil {
		r.audit.RecordSubscribe(key)
	}
	return newHandle(r, key, e, att), nil
}

// dropHandle atomically decrements e's refcount; on reaching zero, posts
// UnsubscribeIntent and removes e from the map. e is the exact entry the
// owning Handle subscribed against (captured at Subscribe time), not a
// fresh lookup by key — a lookup-by-key here would reopen the same
// resurrection window acquireEntry exists to close, since the map could
// hold a different, newer entry for key by the time Release runs. The
// map delete is guarded by a membership check under r.mu in case e was
// somehow already superseded, so this can never delete someone else's
// entry.
func (r *Registrar) dropHandle(key catalog.Key, e *entry) {
	e.lock.Lock()
	e.refcount--
	zero := e.refcount == 0
	if zero {
		_ = e.unit.Inbox().TryPost(pipeline.Intent{Kind: pipeline.UnsubscribeIntent, Key: key})
		r.metrics.IncUnsubscribe()
		r.mu.Lock()
		if current, ok := r.entries[key]; ok && current == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
	}
	e.lock.Unlock()

	if zero && r.audit != nil {
		r.audit.RecordUnsubscribe(key)
	}
}

// Shutdown posts Shutdown to every unit; units finish their in-flight
// packet, unsubscribe every stream they hold, and leave their Run loops.
// The connections themselves are closed by the broker's managers.
func (r *Registrar) Shutdown() {
	for _, u := range r.units {
		_ = u.Inbox().TryPost(pipeline.Intent{Kind: pipeline.ShutdownIntent})
	}
}
