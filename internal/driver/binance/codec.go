package binance

import (
	"sync"

	"l2broker/internal/catalog"
	"l2broker/pkg/scanner"
	"l2broker/pkg/transport"
)

var keySymbol = []byte(`"s"`)

// Codec bridges transport's StreamID-keyed control framing to Driver's
// Symbol-keyed one, and decodes an inbound payload's stream identity from
// either its "id" (control ack) or "s" (depth update) field.
type Codec struct {
	drv *Driver

	mu            sync.RWMutex
	symByStream   map[transport.StreamID]catalog.Symbol
	streamBySymbol map[uint64]transport.StreamID
	streamByReq   map[transport.RequestID]transport.StreamID
}

// NewCodec wraps drv with the stream<->symbol bookkeeping transport.Session
// needs.
func NewCodec(drv *Driver) *Codec {
	return &Codec{
		drv:            drv,
		symByStream:    make(map[transport.StreamID]catalog.Symbol),
		streamBySymbol: make(map[uint64]transport.StreamID),
		streamByReq:    make(map[transport.RequestID]transport.StreamID),
	}
}

// Register implements driver.ExchangeCodec.
func (c *Codec) Register(stream transport.StreamID, sym catalog.Symbol) {
	c.mu.Lock()
	c.symByStream[stream] = sym
	c.streamBySymbol[hashUpper(sym.Name)] = stream
	c.mu.Unlock()
}

// Unregister implements driver.ExchangeCodec.
func (c *Codec) Unregister(stream transport.StreamID) {
	c.mu.Lock()
	if sym, ok := c.symByStream[stream]; ok {
		delete(c.streamBySymbol, hashUpper(sym.Name))
	}
	delete(c.symByStream, stream)
	c.mu.Unlock()
}

// DecodeStream implements transport.StreamDecoder. A control ack carries
// the request id it answers; a depth update carries the uppercased ticker
// in its "s" field, which is what the lookup uses (Binance's "e" field is
// an event name, not a stream name, so it cannot identify the stream).
func (c *Codec) DecodeStream(payload []byte) (transport.StreamID, bool) {
	if id, ok := scanner.ScanUintField(payload, keyID); ok {
		c.mu.RLock()
		stream, found := c.streamByReq[transport.RequestID(id)]
		c.mu.RUnlock()
		if found {
			return stream, true
		}
	}
	if sym, ok := scanner.ScanStringField(payload, keySymbol); ok {
		c.mu.RLock()
		stream, found := c.streamBySymbol[hashBytesUpper(sym)]
		c.mu.RUnlock()
		if found {
			return stream, true
		}
	}
	return 0, false
}

// EncodeSubscribe implements transport.ControlEncoder.
func (c *Codec) EncodeSubscribe(buf []byte, stream transport.StreamID, req transport.RequestID) []byte {
	sym, ok := c.symFor(stream)
	if !ok {
		return buf
	}
	c.mu.Lock()
	c.streamByReq[req] = stream
	c.mu.Unlock()
	return c.drv.BuildSubscribe(buf, sym, req)
}

// EncodeUnsubscribe implements transport.ControlEncoder.
func (c *Codec) EncodeUnsubscribe(buf []byte, stream transport.StreamID, req transport.RequestID) []byte {
	sym, ok := c.symFor(stream)
	if !ok {
		return buf
	}
	c.mu.Lock()
	c.streamByReq[req] = stream
	c.mu.Unlock()
	return c.drv.BuildUnsubscribe(buf, sym, req)
}

func (c *Codec) symFor(stream transport.StreamID) (catalog.Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sym, ok := c.symByStream[stream]
	return sym, ok
}

// hashUpper hashes a Go string as if every ASCII letter were upper-cased.
func hashUpper(name string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	var hash uint64 = offset64
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		hash ^= uint64(b)
		hash *= prime64
	}
	return hash
}

// hashBytesUpper is hashUpper over a borrowed []byte instead of a string.
func hashBytesUpper(data []byte) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	var hash uint64 = offset64
	for i := range data {
		b := data[i]
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		hash ^= uint64(b)
		hash *= prime64
	}
	return hash
}
