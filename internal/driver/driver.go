// Package driver defines the exchange driver contract: the narrow seam
// between a pipeline unit's run-to-completion loop and the exchange-specific
// subscribe/unsubscribe wire format and depth payload parser. Concrete
// drivers live in subpackages (binance, btcc).
package driver

import (
	"l2broker/internal/book"
	"l2broker/internal/catalog"
	"l2broker/pkg/transport"
)

// Sink receives parsed depth updates. The pipeline unit's *book.Book
// satisfies this directly: ParseMessage calls BeginPacket/Upsert/EndPacket
// through it, never touching the book type itself, so a driver cannot
// depend on book internals.
type Sink interface {
	BeginPacket()
	Upsert(side book.Side, price book.Tick, qty book.Qty) error
	EndPacket()
}

// ParseOutcome classifies what ParseMessage did with one inbound payload,
// so the pipeline unit can count control acks vs. depth updates vs. parse
// failures without the driver reaching into pipeline state.
type ParseOutcome uint8

const (
	// OutcomeIgnored is a message the driver recognized as irrelevant
	// (e.g. a pong, or another stream's payload on a shared connection).
	OutcomeIgnored ParseOutcome = iota
	// OutcomeDepthApplied means one or more levels were upserted into Sink.
	OutcomeDepthApplied
	// OutcomeControlAck means the payload acknowledged a pending
	// subscribe or unsubscribe; the pipeline unit's own state (it knows
	// which one it is waiting for) disambiguates which.
	OutcomeControlAck
	// OutcomeResetRequired means the payload signaled a gap (e.g. a
	// sequence discontinuity). The pipeline unit resets the book; it does
	// not resubscribe, and the subscription's state is left unchanged.
	OutcomeResetRequired
	// OutcomeParseError means the payload was malformed.
	OutcomeParseError
)

// Driver is the exchange-specific contract a pipeline unit drives. All
// methods are called from the pipeline unit's single owning goroutine; a
// Driver implementation needs no internal locking for methods invoked on
// that path. Driver instances are not shared across pipeline units.
type Driver interface {
	// Exchange identifies which catalog.Exchange this driver speaks for.
	Exchange() catalog.ExchangeID

	// Endpoint returns the WebSocket URL a transport.Dialer should connect
	// to in order to receive sym's depth stream.
	Endpoint(sym catalog.Symbol) string

	// StreamFor derives the transport.StreamID a subscription to sym will
	// arrive tagged with, so the pipeline unit can register a transport
	// consumer before sending the subscribe control frame.
	StreamFor(sym catalog.Symbol) transport.StreamID

	// BuildSubscribe appends a subscribe control frame for sym, tagged with
	// request id req, to buf and returns the grown slice.
	BuildSubscribe(buf []byte, sym catalog.Symbol, req transport.RequestID) []byte

	// BuildUnsubscribe appends an unsubscribe control frame for sym to buf.
	BuildUnsubscribe(buf []byte, sym catalog.Symbol, req transport.RequestID) []byte

	// ParseMessage interprets one inbound payload for sym, applying any
	// depth levels found to sink, and reports what kind of message it was.
	ParseMessage(payload []byte, sym catalog.Symbol, sink Sink) ParseOutcome
}

// ExchangeCodec adapts a Driver's symbol-keyed subscribe framing to
// transport's stream-keyed Dialer/Session plumbing. One instance is shared
// by every pipeline unit subscribing through the same transport.Manager
// for a given exchange, so Register/Unregister calls must be safe for
// concurrent use alongside DecodeStream/EncodeSubscribe/EncodeUnsubscribe.
type ExchangeCodec interface {
	transport.StreamDecoder
	transport.ControlEncoder

	// Register associates stream with sym so future EncodeSubscribe,
	// EncodeUnsubscribe, and DecodeStream calls for that stream resolve
	// to the right symbol.
	Register(stream transport.StreamID, sym catalog.Symbol)
	// Unregister removes stream's association.
	Unregister(stream transport.StreamID)
}
