package btcc

import (
	"sync"

	"l2broker/internal/catalog"
	"l2broker/pkg/scanner"
	"l2broker/pkg/transport"
)

var keyParams = []byte(`"params":[`)

// Codec bridges transport's StreamID-keyed control framing to Driver's
// Symbol-keyed one. BTCC's depth.update carries the market name as the
// third positional element of "params" (after a full/delta bool and the
// orderbook object), so decoding it means stepping past that nested
// object rather than matching a single top-level key.
type Codec struct {
	drv *Driver

	mu             sync.RWMutex
	symByStream    map[transport.StreamID]catalog.Symbol
	streamByMarket map[string]transport.StreamID
	streamByReq    map[transport.RequestID]transport.StreamID
}

// NewCodec wraps drv with the stream<->symbol bookkeeping transport.Session
// needs.
func NewCodec(drv *Driver) *Codec {
	return &Codec{
		drv:            drv,
		symByStream:    make(map[transport.StreamID]catalog.Symbol),
		streamByMarket: make(map[string]transport.StreamID),
		streamByReq:    make(map[transport.RequestID]transport.StreamID),
	}
}

// Register implements driver.ExchangeCodec.
func (c *Codec) Register(stream transport.StreamID, sym catalog.Symbol) {
	c.mu.Lock()
	c.symByStream[stream] = sym
	c.streamByMarket[marketName(sym)] = stream
	c.mu.Unlock()
}

// Unregister implements driver.ExchangeCodec.
func (c *Codec) Unregister(stream transport.StreamID) {
	c.mu.Lock()
	if sym, ok := c.symByStream[stream]; ok {
		delete(c.streamByMarket, marketName(sym))
	}
	delete(c.symByStream, stream)
	c.mu.Unlock()
}

// DecodeStream implements transport.StreamDecoder.
func (c *Codec) DecodeStream(payload []byte) (transport.StreamID, bool) {
	if id, ok := scanner.ScanUintField(payload, keyID); ok {
		c.mu.RLock()
		stream, found := c.streamByReq[transport.RequestID(id)]
		c.mu.RUnlock()
		if found {
			return stream, true
		}
	}

	market, ok := extractDepthUpdateMarket(payload)
	if !ok {
		return 0, false
	}
	c.mu.RLock()
	stream, found := c.streamByMarket[string(market)]
	c.mu.RUnlock()
	return stream, found
}

// extractDepthUpdateMarket locates the third "params" element (the market
// name) by skipping the boolean flag and the nested orderbook object
// rather than parsing the message.
func extractDepthUpdateMarket(payload []byte) ([]byte, bool) {
	idx := scanner.IndexOf(payload, keyParams)
	if idx < 0 {
		return nil, false
	}
	i := idx + len(keyParams)

	for i < len(payload) && payload[i] != ',' {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	i++

	for i < len(payload) && scanner.IsSpace(payload[i]) {
		i++
	}
	if i < len(payload) && payload[i] == '{' {
		next, ok := scanner.SkipBalanced(payload, i)
		if !ok {
			return nil, false
		}
		i = next
	}
	for i < len(payload) && payload[i] != ',' && payload[i] != ']' {
		i++
	}
	if i >= len(payload) || payload[i] != ',' {
		return nil, false
	}
	i++

	for i < len(payload) && payload[i] != '"' {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	i++
	start := i
	for i < len(payload) && payload[i] != '"' {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	return payload[start:i], true
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
