package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"l2broker/internal/book"
	"l2broker/internal/catalog"
	"l2broker/internal/driver"
	"l2broker/pkg/transport"
)

// stubDriver drives ParseMessage off a payload marker byte instead of real
// exchange framing, so pipeline tests don't need a live wire format.
type stubDriver struct {
	exchange catalog.ExchangeID
}

func (d *stubDriver) Exchange() catalog.ExchangeID          { return d.exchange }
func (d *stubDriver) Endpoint(catalog.Symbol) string        { return "wss://stub.test" }
func (d *stubDriver) StreamFor(sym catalog.Symbol) transport.StreamID {
	return transport.StreamID(sym.ID)
}
func (d *stubDriver) BuildSubscribe(buf []byte, sym catalog.Symbol, req transport.RequestID) []byte {
	return append(buf, "sub"...)
}
func (d *stubDriver) BuildUnsubscribe(buf []byte, sym catalog.Symbol, req transport.RequestID) []byte {
	return append(buf, "unsub"...)
}
func (d *stubDriver) ParseMessage(payload []byte, sym catalog.Symbol, sink driver.Sink) driver.ParseOutcome {
	if len(payload) == 0 {
		return driver.OutcomeParseError
	}
	switch payload[0] {
	case 'a':
		return driver.OutcomeControlAck
	case 'd':
		sink.BeginPacket()
		_ = sink.Upsert(book.Bid, 100, 5)
		sink.EndPacket()
		return driver.OutcomeDepthApplied
	case 'r':
		return driver.OutcomeResetRequired
	default:
		return driver.OutcomeIgnored
	}
}

// stubCodec satisfies driver.ExchangeCodec without any real wire decoding;
// pipeline tests drive applyFrame directly instead of through a Manager's
// read loop.
type stubCodec struct{}

func (stubCodec) Register(transport.StreamID, catalog.Symbol) {}
func (stubCodec) Unregister(transport.StreamID)               {}
func (stubCodec) DecodeStream([]byte) (transport.StreamID, bool) {
	return 0, false
}
func (stubCodec) EncodeSubscribe(buf []byte, stream transport.StreamID, req transport.RequestID) []byte {
	return append(buf, "sub"...)
}
func (stubCodec) EncodeUnsubscribe(buf []byte, stream transport.StreamID, req transport.RequestID) []byte {
	return append(buf, "unsub"...)
}

// failDialer always fails, so a Manager under test never leaves the dial
// retry loop but never blocks test teardown either (Session.Run's backoff
// sleep is ctx-interruptible).
type failDialer struct{}

func (failDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	return nil, errors.New("stub: refused")
}

func newTestFrame(stream transport.StreamID, payload string) *transport.Frame {
	return &transport.Frame{Buf: []byte(payload), Stream: stream, Type: transport.MessageText}
}

func newTestUnit(t *testing.T) (*Unit, catalog.Key, func()) {
	t.Helper()
	reg := catalog.NewRegistry()
	ex, err := reg.AddExchange("stub")
	if err != nil {
		t.Fatal(err)
	}
	symID, err := reg.AddSymbol(ex, "btcusdt", -8, -8, catalog.ProductSpot)
	if err != nil {
		t.Fatal(err)
	}

	drv := &stubDriver{exchange: ex}
	codec := stubCodec{}
	ctx, cancel := context.WithCancel(context.Background())
	mgr := transport.NewManager(ctx, transport.ManagerConfig{
		URL:     "wss://stub.test",
		Dialer:  failDialer{},
		Decoder: codec,
		Encoder: codec,
	})

	cfg := DefaultConfig()
	cfg.SubTimeout = 10 * time.Millisecond
	cfg.UnsubTimeout = 10 * time.Millisecond
	cfg.BackoffMin = 5 * time.Millisecond
	cfg.BackoffMax = 20 * time.Millisecond

	u := New(0, cfg, reg,
		map[catalog.ExchangeID]driver.Driver{ex: drv},
		map[catalog.ExchangeID]*transport.Manager{ex: mgr},
		map[catalog.ExchangeID]driver.ExchangeCodec{ex: codec},
	)

	key := catalog.Key{Exchange: ex, Symbol: symID, Product: catalog.ProductSpot}
	return u, key, func() {
		cancel()
		_ = mgr.Close()
	}
}

func TestStartSubscribeEntersSubscribingState(t *testing.T) {
	u, key, done := newTestUnit(t)
	defer done()

	u.drainIntents(Intent{Kind: SubscribeIntent, Key: key})

	st, ok := u.State(key)
	if !ok || st != Subscribing {
		t.Fatalf("State = (%v, %v), want (Subscribing, true)", st, ok)
	}
}

func TestApplyFrameControlAckActivatesSubscription(t *testing.T) {
	u, key, done := newTestUnit(t)
	defer done()

	u.drainIntents(Intent{Kind: SubscribeIntent, Key: key})
	s := u.subs[key]

	f := newTestFrame(s.stream, "ack")
	u.applyFrame(f)

	st, _ := u.State(key)
	if st != Active {
		t.Fatalf("State after ack = %v, want Active", st)
	}
}

func TestApplyFrameDepthUpdateWritesBook(t *testing.T) {
	u, key, done := newTestUnit(t)
	defer done()

	u.drainIntents(Intent{Kind: SubscribeIntent, Key: key})
	s := u.subs[key]

	f := newTestFrame(s.stream, "depth")
	u.applyFrame(f)

	bk, ok := u.Book(key)
	if !ok {
		t.Fatal("expected book to exist")
	}
	if bk.LenBids() != 1 {
		t.Fatalf("LenBids = %d, want 1", bk.LenBids())
	}
}

func TestApplyFrameResetRequiredClearsBook(t *testing.T) {
	u, key, done := newTestUnit(t)
	defer done()

	u.drainIntents(Intent{Kind: SubscribeIntent, Key: key})
	s := u.subs[key]

	u.applyFrame(newTestFrame(s.stream, "depth"))
	u.applyFrame(newTestFrame(s.stream, "rset"))

	bk, _ := u.Book(key)
	if bk.LenBids() != 0 {
		t.Fatalf("LenBids after reset = %d, want 0", bk.LenBids())
	}
}

func TestApplyFrameResetRequiredAfterGapLeavesBookEmptyAtHigherEvenVersion(t *testing.T) {
	u, key, done := newTestUnit(t)
	defer done()

	u.drainIntents(Intent{Kind: SubscribeIntent, Key: key})
	s := u.subs[key]
	u.applyFrame(newTestFrame(s.stream, "ack"))
	u.applyFrame(newTestFrame(s.stream, "depth"))

	bk, _ := u.Book(key)
	before := bk.Version()

	u.applyFrame(newTestFrame(s.stream, "rset"))

	if bk.LenBids() != 0 || bk.LenAsks() != 0 {
		t.Fatalf("LenBids/LenAsks after gap reset = %d/%d, want 0/0", bk.LenBids(), bk.LenAsks())
	}
	after := bk.Version()
	if after%2 != 0 {
		t.Fatalf("Version after reset = %d, want even", after)
	}
	if after <= before {
		t.Fatalf("Version after reset = %d, want > %d", after, before)
	}
}

func TestHousekeepExpiresSubscribingIntoFailed(t *testing.T) {
	u, key, done := newTestUnit(t)
	defer done()

	u.drainIntents(Intent{Kind: SubscribeIntent, Key: key})
	u.housekeep(time.Now().Add(u.cfg.SubTimeout * 2))

	st, _ := u.State(key)
	if st != Failed {
		t.Fatalf("State after timeout = %v, want Failed", st)
	}
}

func TestHousekeepRetriesFailedAfterBackoff(t *testing.T) {
	u, key, done := newTestUnit(t)
	defer done()

	u.drainIntents(Intent{Kind: SubscribeIntent, Key: key})
	base := time.Now()
	u.housekeep(base.Add(u.cfg.SubTimeout * 2))
	if st, _ := u.State(key); st != Failed {
		t.Fatalf("State = %v, want Failed", st)
	}

	u.housekeep(base.Add(u.cfg.SubTimeout*2 + u.cfg.BackoffMax*2))
	st, _ := u.State(key)
	if st != Subscribing {
		t.Fatalf("State after retry = %v, want Subscribing", st)
	}
}

func TestUnsubscribeTransitionsThroughUnsubscribingToClosed(t *testing.T) {
	u, key, done := newTestUnit(t)
	defer done()

	u.drainIntents(Intent{Kind: SubscribeIntent, Key: key})
	s := u.subs[key]
	u.applyFrame(newTestFrame(s.stream, "ack"))

	u.drainIntents(Intent{Kind: UnsubscribeIntent, Key: key})
	st, ok := u.State(key)
	if !ok || st != Unsubscribing {
		t.Fatalf("State = (%v, %v), want (Unsubscribing, true)", st, ok)
	}

	u.applyFrame(newTestFrame(s.stream, "ack"))

	if _, ok := u.State(key); ok {
		t.Fatal("expected subscription to be removed after close")
	}
}
