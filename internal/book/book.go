// Package book implements a cache-resident top-K L2 order book: a fixed
// 32-level array per side with lazy-invalidation compaction and seq-lock
// versioning, with levels stored in fixed, contiguous arrays.
//
// Exactly one goroutine — the owning pipeline unit — ever calls the write
// side (BeginPacket/Upsert/Remove/EndPacket/Reset). Any number of goroutines
// may call Snapshot concurrently; they never block and never mutate state.
package book

import (
	"sync/atomic"

	"l2broker/pkg/exception"
)

// Depth is the compile-time top-K level count per side.
const Depth = 32

// Tick is a signed fixed-point price: the real price is Tick * 10^price_exp.
type Tick int64

// Qty is a signed fixed-point quantity: the real size is Qty * 10^qty_exp.
// The reserved value TombstoneQty denotes a slot marked for removal but not
// yet swept; it is an internal representation and is never passed to
// Upsert/Remove by a driver.
type Qty int64

// TombstoneQty marks a level pending compaction.
const TombstoneQty Qty = -1

// Level is a single (price, qty) pair. Layout is fixed and contiguous so
// that 2*Depth levels plus the version counter fit in about 1 KiB, and so
// the wire layout is exactly this struct, little-endian, with no padding
// surprises on amd64/arm64.
type Level struct {
	Price Tick
	Qty   Qty
}

// Side selects which half of the book an operation targets.
type Side uint8

const (
	// Bid orders by descending price: index 0 is the best (highest) bid.
	Bid Side = iota
	// Ask orders by ascending price: index 0 is the best (lowest) ask.
	Ask
)

// Book is the per-(exchange, symbol, product) top-of-book structure. The
// zero value is a valid, empty book.
type Book struct {
	version uint64 // seq-lock counter; odd = writer in packet, even = stable

	bids bookSide
	asks bookSide

	inPacket bool
	dirty    bool
}

type bookSide struct {
	levels    [Depth]Level
	occLen    int // slots in use (active + tombstone), contiguous from 0
	activeLen int // active (qty > 0) count among those; spec's len_bids/len_asks
}

// New returns an empty book. Equivalent to new(Book).
func New() *Book {
	return &Book{}
}

// BeginPacket marks the book as in-packet. The invariant is that no other
// writer may be mutating concurrently — there is exactly one owner.
func (b *Book) BeginPacket() {
	b.inPacket = true
	b.dirty = false
}

// Upsert applies one (side, price, qty) entry from a driver's parsed frame.
// qty > 0 adds or replaces a level; qty <= 0 marks the price for removal.
// A price of exactly zero is rejected.
func (b *Book) Upsert(side Side, price Tick, qty Qty) error {
	if price == 0 {
		return exception.ErrInvalidPrice
	}
	b.markDirty()
	s := b.sideOf(side)
	if qty > 0 {
		s.add(side, price, qty)
	} else {
		s.remove(price)
	}
	return nil
}

// EndPacket compacts away tombstones (if any mutation occurred this
// packet) and publishes a new even version. Safe to call even if nothing
// was mutated — in that case it is a no-op, per the seq-lock discipline:
// the odd-making fetch_add already happened lazily inside the first
// mutating call, so an untouched packet never perturbs version at all.
func (b *Book) EndPacket() {
	if b.dirty {
		b.bids.compact()
		b.asks.compact()
		atomic.AddUint64(&b.version, 1) // odd -> even
		b.dirty = false
	}
	b.inPacket = false
}

// Reset clears both sides and bumps the version past any in-flight read,
// used after a reconnection gap so a stale reader's snapshot naturally
// invalidates.
func (b *Book) Reset() {
	atomic.AddUint64(&b.version, 1) // ensure odd while we clear
	b.bids = bookSide{}
	b.asks = bookSide{}
	atomic.AddUint64(&b.version, 1) // back to even
}

// LenBids returns the number of active bid levels.
func (b *Book) LenBids() int { return b.bids.activeLen }

// LenAsks returns the number of active ask levels.
func (b *Book) LenAsks() int { return b.asks.activeLen }

// Snapshot copies both sides into the caller-provided arrays and returns the
// version observed and whether the copy is internally consistent: v0 == v1
// and both even. On ok == false the caller should retry.
func (b *Book) Snapshot(outBids, outAsks *[Depth]Level) (version uint64, ok bool) {
	v0 := atomic.LoadUint64(&b.version)
	if v0&1 != 0 {
		return 0, false
	}
	*outBids = b.bids.levels
	*outAsks = b.asks.levels
	v1 := atomic.LoadUint64(&b.version)
	return v0, v0 == v1 && v1&1 == 0
}

// Version returns the current raw version counter (for tests/diagnostics).
func (b *Book) Version() uint64 {
	return atomic.LoadUint64(&b.version)
}

func (b *Book) sideOf(side Side) *bookSide {
	if side == Bid {
		return &b.bids
	}
	return &b.asks
}

func (b *Book) markDirty() {
	if !b.dirty {
		atomic.AddUint64(&b.version, 1) // even -> odd, first mutation of the packet
		b.dirty = true
	}
}

// better reports whether price a ranks ahead of price b on this side: for
// bids that means a higher price, for asks a lower one.
func better(side Side, a, b Tick) bool {
	if side == Bid {
		return a > b
	}
	return a < b
}

// add implements the four upsert cases: revive, insert-ordered, append,
// and drop-outside-top-K.
func (s *bookSide) add(side Side, price Tick, qty Qty) {
	for i := 0; i < s.occLen; i++ {
		cur := s.levels[i].Price
		switch {
		case cur == price:
			if s.levels[i].Qty <= 0 {
				s.activeLen++ // revive a tombstone
			}
			s.levels[i].Qty = qty
			return
		case better(side, price, cur):
			s.insertAt(i, price, qty)
			return
		}
	}
	// Worse than (or equal the ordering boundary of) every occupied slot:
	// append if there is room, otherwise this is outside the top-K and is
	// silently dropped (the top-K high-pass filter).
	if s.occLen < Depth {
		s.levels[s.occLen] = Level{Price: price, Qty: qty}
		s.occLen++
		s.activeLen++
	}
}

// insertAt shifts the suffix [idx, occLen) one slot to the right to make
// room for a new level at idx. Tombstones in the shifted range carry no
// data worth preserving and are shifted like any other cell. If the book
// is already full, the worst occupied slot (the tail) is evicted to make
// room — the top-K discipline.
func (s *bookSide) insertAt(idx int, price Tick, qty Qty) {
	if s.occLen < Depth {
		copy(s.levels[idx+1:s.occLen+1], s.levels[idx:s.occLen])
		s.occLen++
	} else {
		evicted := s.levels[Depth-1]
		if evicted.Qty > 0 {
			s.activeLen--
		}
		copy(s.levels[idx+1:Depth], s.levels[idx:Depth-1])
	}
	s.levels[idx] = Level{Price: price, Qty: qty}
	s.activeLen++
}

// remove marks price as a tombstone if present and active. A missing price
// or an already-tombstoned price is a no-op.
func (s *bookSide) remove(price Tick) {
	for i := 0; i < s.occLen; i++ {
		if s.levels[i].Price == price {
			if s.levels[i].Qty > 0 {
				s.levels[i].Qty = TombstoneQty
				s.activeLen--
			}
			return
		}
	}
}

// compact removes tombstones by shifting active levels to the front and
// padding the tail with sentinel zero levels.
func (s *bookSide) compact() {
	next := 0
	for i := 0; i < s.occLen; i++ {
		if s.levels[i].Qty > 0 {
			if i != next {
				s.levels[next] = s.levels[i]
			}
			next++
		}
	}
	for i := next; i < s.occLen; i++ {
		s.levels[i] = Level{}
	}
	s.occLen = next
	s.activeLen = next
}
