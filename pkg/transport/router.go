package transport

import "sync"

// Router fans an inbound Frame out to every Consumer registered for its
// StreamID. FanOutCopy duplicates the payload per consumer; FanOutShared
// ref-counts one Frame across all of them.
type Router struct {
	mu        sync.RWMutex
	consumers map[StreamID][]*Consumer
	mode      FanOutMode
	pool      *framePool
}

// NewRouter creates a router in the given fan-out mode.
func NewRouter(mode FanOutMode, pool *framePool) *Router {
	return &Router{
		consumers: make(map[StreamID][]*Consumer),
		mode:      mode,
		pool:      pool,
	}
}

// AddConsumer registers c to receive frames for stream.
func (r *Router) AddConsumer(stream StreamID, c *Consumer) {
	r.mu.Lock()
	r.consumers[stream] = append(r.consumers[stream], c)
	r.mu.Unlock()
}

// RemoveConsumer unregisters c from stream.
func (r *Router) RemoveConsumer(stream StreamID, c *Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.consumers[stream]
	for i, cur := range list {
		if cur == c {
			r.consumers[stream] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.consumers[stream]) == 0 {
		delete(r.consumers, stream)
	}
}

// Route delivers f to every consumer of f.Stream. If nobody is subscribed
// the frame is released immediately.
func (r *Router) Route(f *Frame) {
	r.mu.RLock()
	list := r.consumers[f.Stream]
	r.mu.RUnlock()

	if len(list) == 0 {
		f.Release()
		return
	}
	if r.mode == FanOutShared {
		for i := 1; i < len(list); i++ {
			f.Retain()
		}
		for _, c := range list {
			c.Push(f)
		}
		return
	}
	for i, c := range list {
		if i == len(list)-1 {
			c.Push(f)
			return
		}
		cp := r.pool.Get(len(f.Buf), f.Stream, f.Type)
		cp.Buf = append(cp.Buf[:0], f.Buf...)
		c.Push(cp)
	}
	f.Release()
}
