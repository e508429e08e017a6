// Package pipeline implements the per-core run-to-completion loop: one
// pinned worker drains its intent inbox, pumps frames for every connection
// it owns through the owning driver's parser, and drives each
// subscription's state machine. No book mutation for a unit's
// subscriptions ever happens on any other goroutine.
package pipeline

import (
	"context"
	"time"

	"l2broker/internal/book"
	"l2broker/internal/catalog"
	"l2broker/internal/driver"
	"l2broker/internal/obs"
	"l2broker/pkg/transport"
)

// Config tunes the timers and batch sizes of a Unit's loop.
type Config struct {
	InboxCapacity  int
	IntentBatch    int
	SubTimeout     time.Duration
	UnsubTimeout   time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	HousekeepEvery time.Duration
	Logger         obs.Logger
}

// DefaultConfig returns timer values matched to typical depth-stream
// cadence (Binance publishes diffs every 100ms).
func DefaultConfig() Config {
	return Config{
		InboxCapacity:  256,
		IntentBatch:    32,
		SubTimeout:     5 * time.Second,
		UnsubTimeout:   5 * time.Second,
		BackoffMin:     500 * time.Millisecond,
		BackoffMax:     30 * time.Second,
		HousekeepEvery: 250 * time.Millisecond,
		Logger:         obs.DefaultLogger(),
	}
}

// subscription is one (exchange, symbol, product)'s bookkeeping within a
// Unit. Every field here is touched only by the Unit's own goroutine; att
// is the one part a consumer elsewhere may read concurrently.
type subscription struct {
	key      catalog.Key
	sym      catalog.Symbol
	att      *Attachment
	mgr      *transport.Manager
	drv      driver.Driver
	stream   transport.StreamID
	req      transport.RequestID
	deadline time.Time
	attempt  int
}

// Unit is one pinned-core run-to-completion worker.
type Unit struct {
	ID int

	cfg      Config
	inbox    *Inbox
	consumer *transport.Consumer
	subs     map[catalog.Key]*subscription
	nextReq  transport.RequestID

	registry *catalog.Registry
	drivers  map[catalog.ExchangeID]driver.Driver
	managers map[catalog.ExchangeID]*transport.Manager
	codecs   map[catalog.ExchangeID]driver.ExchangeCodec
}

// New constructs a Unit. drivers, managers and codecs must be populated for
// every exchange this unit will ever be asked to subscribe; registry
// resolves a catalog.Key's SymbolID to its full catalog.Symbol
// (exchange/venue name, price/qty exponents). codecs' Register/Unregister
// calls are what make managers' DecodeStream/EncodeSubscribe/
// EncodeUnsubscribe resolve a given stream to the right symbol, so a
// manager and its codec for the same exchange must be the same pairing
// used when the manager was constructed.
func New(id int, cfg Config, registry *catalog.Registry, drivers map[catalog.ExchangeID]driver.Driver, managers map[catalog.ExchangeID]*transport.Manager, codecs map[catalog.ExchangeID]driver.ExchangeCodec) *Unit {
	return &Unit{
		ID:       id,
		cfg:      cfg,
		inbox:    NewInbox(cfg.InboxCapacity),
		consumer: transport.NewConsumer(cfg.InboxCapacity),
		subs:     make(map[catalog.Key]*subscription),
		registry: registry,
		drivers:  drivers,
		managers: managers,
		codecs:   codecs,
	}
}

// Inbox exposes the intent queue for a registrar to post into.
func (u *Unit) Inbox() *Inbox { return u.inbox }

// Book returns the live book for key if this unit has attached it. Only
// safe to call from the unit's own goroutine (e.g. tests driving the loop
// directly); a registrar instead keeps the *Attachment it created at
// subscribe() time and reads Attachment.Book, which is concurrency-safe.
func (u *Unit) Book(key catalog.Key) (*book.Book, bool) {
	s, ok := u.subs[key]
	if !ok {
		return nil, false
	}
	return s.att.Book, true
}

// State returns the current subscription state for key. Same goroutine
// caveat as Book.
func (u *Unit) State(key catalog.Key) (State, bool) {
	s, ok := u.subs[key]
	if !ok {
		return Idle, false
	}
	return s.att.State(), true
}

// Run is the main loop: drain intents, pump ready frames through the
// driver parser, run end_packet on touched books, then yield. It returns
// when ctx is cancelled, the inbox is closed, or a ShutdownIntent has been
// handled.
func (u *Unit) Run(ctx context.Context) error {
	frames := make(chan *transport.Frame, u.cfg.InboxCapacity)
	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()
	go u.pumpFrames(pumpCtx, frames)

	ticker := time.NewTicker(u.cfg.HousekeepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case intent, ok := <-u.inbox.Chan():
			if !ok {
				return nil
			}
			if u.drainIntents(intent) {
				return nil
			}
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			u.applyFrame(f)
		case now := <-ticker.C:
			u.housekeep(now)
		}
	}
}

func (u *Unit) pumpFrames(ctx context.Context, out chan<- *transport.Frame) {
	for {
		f, err := u.consumer.Next(ctx)
		if err != nil {
			close(out)
			return
		}
		select {
		case out <- f:
		case <-ctx.Done():
			f.Release()
			close(out)
			return
		}
	}
}

// drainIntents handles the first intent already read from the channel,
// then opportunistically drains more without blocking, IntentBatch intents
// in all at most, so a burst of subscribes can't starve frame processing.
// It reports whether a ShutdownIntent was among those handled.
func (u *Unit) drainIntents(first Intent) bool {
	u.handleIntent(first)
	if first.Kind == ShutdownIntent {
		return true
	}
	for n := 1; n < u.cfg.IntentBatch; n++ {
		select {
		case next, ok := <-u.inbox.Chan():
			if !ok {
				return false
			}
			u.handleIntent(next)
			if next.Kind == ShutdownIntent {
				return true
			}
		default:
			return false
		}
	}
	return false
}

func (u *Unit) handleIntent(i Intent) {
	switch i.Kind {
	case SubscribeIntent:
		u.startSubscribe(i.Key, i.Attachment)
	case UnsubscribeIntent:
		u.startUnsubscribe(i.Key)
	case ShutdownIntent:
		for key := range u.subs {
			u.startUnsubscribe(key)
		}
	}
}

// startSubscribe attaches key to this unit, using att as the subscription's
// consumer-visible book/state if it does not already exist. att is nil on
// a housekeep-driven retry of an existing subscription, where the original
// attachment from its first SubscribeIntent is reused.
func (u *Unit) startSubscribe(key catalog.Key, att *Attachment) {
	drv, mgr, codec, sym, ok := u.resolve(key)
	if !ok {
		u.cfg.Logger.Warn("pipeline: unit %d cannot subscribe %v: unknown exchange/symbol", u.ID, key)
		return
	}
	s, exists := u.subs[key]
	if !exists {
		if att == nil {
			att = NewAttachment()
		}
		s = &subscription{key: key, sym: sym, att: att, mgr: mgr, drv: drv}
		u.subs[key] = s
	}
	if st := s.att.State(); st == Active || st == Subscribing {
		return
	}
	s.stream = drv.StreamFor(sym)
	codec.Register(s.stream, sym)
	mgr.AddConsumer(s.stream, u.consumer)
	mgr.Subscribe(s.stream)
	s.att.setState(Subscribing)
	s.deadline = time.Now().Add(u.cfg.SubTimeout)
}

func (u *Unit) startUnsubscribe(key catalog.Key) {
	s, ok := u.subs[key]
	if !ok {
		return
	}
	if st := s.att.State(); st == Closed || st == Unsubscribing {
		return
	}
	s.mgr.Unsubscribe(s.stream)
	s.mgr.RemoveConsumer(s.stream, u.consumer)
	if codec, ok := u.codecs[key.Exchange]; ok {
		codec.Unregister(s.stream)
	}
	s.att.setState(Unsubscribing)
	s.deadline = time.Now().Add(u.cfg.UnsubTimeout)
}

func (u *Unit) resolve(key catalog.Key) (driver.Driver, *transport.Manager, driver.ExchangeCodec, catalog.Symbol, bool) {
	drv, ok := u.drivers[key.Exchange]
	if !ok {
		return nil, nil, nil, catalog.Symbol{}, false
	}
	mgr, ok := u.managers[key.Exchange]
	if !ok {
		return nil, nil, nil, catalog.Symbol{}, false
	}
	codec, ok := u.codecs[key.Exchange]
	if !ok {
		return nil, nil, nil, catalog.Symbol{}, false
	}
	sym, ok := u.registry.Symbol(key.Symbol)
	if !ok {
		return nil, nil, nil, catalog.Symbol{}, false
	}
	return drv, mgr, codec, sym, true
}

// applyFrame routes one inbound frame to its subscription's driver parser
// and acts on the outcome; the driver itself begins and ends the packet.
func (u *Unit) applyFrame(f *transport.Frame) {
	defer f.Release()

	s := u.subscriptionForStream(f.Stream)
	if s == nil {
		return
	}

	outcome := s.drv.ParseMessage(f.Buf, s.sym, s.att.Book)
	switch outcome {
	case driver.OutcomeDepthApplied:
		// the driver already called begin_packet/end_packet around its
		// upserts; nothing further to do here.
	case driver.OutcomeControlAck:
		switch s.att.State() {
		case Subscribing:
			s.att.setState(Active)
		case Unsubscribing:
			s.att.setState(Closed)
			delete(u.subs, s.key)
		}
	case driver.OutcomeResetRequired:
		s.att.Book.Reset()
	case driver.OutcomeParseError:
		u.cfg.Logger.Warn("pipeline: unit %d parse error on %v", u.ID, s.key)
	}
}

func (u *Unit) subscriptionForStream(stream transport.StreamID) *subscription {
	for _, s := range u.subs {
		if s.stream == stream {
			return s
		}
	}
	return nil
}

// housekeep expires T_sub/T_unsub timers and retries Failed subscriptions
// with capped exponential backoff.
func (u *Unit) housekeep(now time.Time) {
	for key, s := range u.subs {
		switch s.att.State() {
		case Subscribing:
			if now.After(s.deadline) {
				s.att.setState(Failed)
				s.attempt++
				s.deadline = now.Add(backoffDelay(s.attempt, u.cfg.BackoffMin, u.cfg.BackoffMax))
			}
		case Unsubscribing:
			if now.After(s.deadline) {
				s.att.setState(Closed)
				delete(u.subs, key)
			}
		case Failed:
			if now.After(s.deadline) {
				u.startSubscribe(key, nil)
			}
		}
	}
}

func backoffDelay(attempt int, min, max time.Duration) time.Duration {
	d := min
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > max {
			return max
		}
	}
	return d
}
