package transport

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// SessionConfig configures one Session's dial target and codecs.
type SessionConfig struct {
	URL            string
	Dialer         Dialer
	Decoder        StreamDecoder
	Encoder        ControlEncoder
	Router         *Router
	Backoff        Backoff
	PingInterval   time.Duration
	WriteQueueSize int
	OverflowPolicy OverflowPolicy
}

// Session owns one physical connection: dialing, reconnect-with-backoff,
// resubscription replay, and the read/write pumps.
type Session struct {
	cfg  SessionConfig
	subs *subscriptions

	frames  *framePool
	outPool *outboundPool
	writer  *writer

	nextReq RequestID
}

// NewSession constructs a Session ready to Run.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.WriteQueueSize == 0 {
		cfg.WriteQueueSize = DefaultWriteQueueSize
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 15 * time.Second
	}
	bp := newBufferPool(256, 1<<20)
	op := newOutboundPool(bp)
	return &Session{
		cfg:     cfg,
		subs:    newSubscriptions(),
		frames:  newFramePool(bp),
		outPool: op,
		writer:  newWriter(cfg.WriteQueueSize, op, cfg.OverflowPolicy),
	}
}

// Subscribe records stream as desired and, once connected, sends the
// subscribe control frame, encoded via cfg.Encoder.
func (s *Session) Subscribe(stream StreamID) {
	s.subs.Add(stream, nil)
}

// Unsubscribe drops stream from the desired set and, if connected, sends
// the unsubscribe control frame.
func (s *Session) Unsubscribe(stream StreamID) {
	s.subs.Remove(stream)
}

// PendingCount reports how many desired streams exist, used by a Manager to
// decide whether a session has room for more.
func (s *Session) PendingCount() int {
	return s.subs.Count()
}

// Run dials, reconnecting with backoff on any failure, until ctx is
// cancelled.
func (s *Session) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := s.cfg.Dialer.Dial(ctx, s.cfg.URL)
		if err != nil {
			logs.Errorf("transport: dial %s failed: %v", s.cfg.URL, err)
			if !s.sleepBackoff(ctx, attempt) {
				return ctx.Err()
			}
			continue
		}
		attempt = -1 // reset backoff after a successful dial
		s.subs.ClearActive()
		if err := s.resubscribe(conn); err != nil {
			_ = conn.Close()
			if !s.sleepBackoff(ctx, 0) {
				return ctx.Err()
			}
			continue
		}
		if err := s.runSession(ctx, conn); err != nil && ctx.Err() == nil {
			logs.Warnf("transport: session ended: %v", err)
		}
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Session) resubscribe(conn Conn) error {
	for _, d := range s.subs.Pending() {
		if err := s.sendSubscribe(conn, d.Stream); err != nil {
			return err
		}
		s.subs.MarkActive(d.Stream)
	}
	return nil
}

func (s *Session) sendSubscribe(conn Conn, stream StreamID) error {
	s.nextReq++
	buf := s.cfg.Encoder.EncodeSubscribe(s.outPool.Get(64), stream, s.nextReq)
	return conn.WriteMessage(MessageText, buf)
}

func (s *Session) sendUnsubscribe(conn Conn, stream StreamID) error {
	s.nextReq++
	buf := s.cfg.Encoder.EncodeUnsubscribe(s.outPool.Get(64), stream, s.nextReq)
	return conn.WriteMessage(MessageText, buf)
}

func (s *Session) runSession(ctx context.Context, conn Conn) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErrs := make(chan error, 1)
	go s.readLoop(sessionCtx, conn, readErrs)

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrs:
			return err
		case out := <-s.writer.Chan():
			if err := conn.WriteMessage(out.Type, out.Buf); err != nil {
				s.outPool.Put(out.Buf)
				return errors.Wrap(err, "write outbound frame")
			}
			s.outPool.Put(out.Buf)
		case <-ticker.C:
			if err := conn.WriteMessage(MessagePing, nil); err != nil {
				return errors.Wrap(err, "send ping")
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context, conn Conn, errs chan<- error) {
	for {
		if ctx.Err() != nil {
			return
		}
		typ, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}
		if typ == MessagePong || typ == MessagePing {
			continue
		}
		stream, ok := s.cfg.Decoder.DecodeStream(payload)
		if !ok {
			continue
		}
		f := s.frames.Get(len(payload), stream, typ)
		f.Buf = append(f.Buf[:0], payload...)
		s.cfg.Router.Route(f)
	}
}

func (s *Session) sleepBackoff(ctx context.Context, attempt int) bool {
	d := s.cfg.Backoff.Next(attempt)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
