package transport

import (
	"context"
	"sync"
)

// ManagerConfig supplies the shared pieces every Session a Manager opens
// will use.
type ManagerConfig struct {
	URL               string
	Dialer            Dialer
	Decoder           StreamDecoder
	Encoder           ControlEncoder
	FanOut            FanOutMode
	Backoff           Backoff
	MaxStreamsPerConn int
}

// Manager owns a pool of Sessions against one exchange endpoint, placing
// each newly subscribed stream on a session with spare capacity rather than
// opening one connection per stream: the first session under the
// per-connection stream cap gets it, and a new one is opened only when all
// are full.
type Manager struct {
	mu   sync.Mutex
	cfg  ManagerConfig
	pool *framePool
	rtr  *Router

	sessions []*Session
	byStream map[StreamID]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager constructs a Manager. ctx bounds the lifetime of every session
// it opens.
func NewManager(ctx context.Context, cfg ManagerConfig) *Manager {
	if cfg.MaxStreamsPerConn == 0 {
		cfg.MaxStreamsPerConn = defaultMaxStreamsPerConn
	}
	bp := newBufferPool(256, 1<<20)
	mctx, cancel := context.WithCancel(ctx)
	return &Manager{
		cfg:      cfg,
		pool:     newFramePool(bp),
		rtr:      NewRouter(cfg.FanOut, newFramePool(bp)),
		byStream: make(map[StreamID]*Session),
		ctx:      mctx,
		cancel:   cancel,
	}
}

// Router exposes the shared fan-out router so callers can attach Consumers.
func (m *Manager) Router() *Router { return m.rtr }

// Subscribe places stream on a session with spare capacity, opening a new
// one if none has room, and sends the subscribe control frame once
// connected (replayed automatically on reconnect).
func (m *Manager) Subscribe(stream StreamID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.pickSessionLocked()
	s.Subscribe(stream)
	m.byStream[stream] = s
}

// Unsubscribe drops stream from whichever session currently owns it.
func (m *Manager) Unsubscribe(stream StreamID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byStream[stream]
	if !ok {
		return
	}
	s.Unsubscribe(stream)
	delete(m.byStream, stream)
}

func (m *Manager) pickSessionLocked() *Session {
	for _, s := range m.sessions {
		if s.PendingCount() < m.cfg.MaxStreamsPerConn {
			return s
		}
	}
	s := NewSession(SessionConfig{
		URL:     m.cfg.URL,
		Dialer:  m.cfg.Dialer,
		Decoder: m.cfg.Decoder,
		Encoder: m.cfg.Encoder,
		Router:  m.rtr,
		Backoff: m.cfg.Backoff,
	})
	m.sessions = append(m.sessions, s)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = s.Run(m.ctx)
	}()
	return s
}

// AddConsumer attaches a Consumer to the manager's shared router for
// stream.
func (m *Manager) AddConsumer(stream StreamID, c *Consumer) {
	m.rtr.AddConsumer(stream, c)
}

// RemoveConsumer detaches c from stream.
func (m *Manager) RemoveConsumer(stream StreamID, c *Consumer) {
	m.rtr.RemoveConsumer(stream, c)
}

// Close stops every session and waits for their goroutines to exit.
func (m *Manager) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}

// SessionCount reports how many physical connections are open.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
