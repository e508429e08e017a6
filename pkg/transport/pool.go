package transport

import "sync"

// bufferPool buckets []byte slabs by power-of-two capacity to keep reused
// read buffers from pinning far more memory than the frame that last used
// them.
type bufferPool struct {
	buckets []sync.Pool
	min     int
}

func newBufferPool(min, max int) *bufferPool {
	n := 0
	for c := min; c <= max; c <<= 1 {
		n++
	}
	p := &bufferPool{buckets: make([]sync.Pool, n), min: min}
	return p
}

func (p *bufferPool) bucketFor(size int) int {
	cap := p.min
	idx := 0
	for cap < size && idx < len(p.buckets)-1 {
		cap <<= 1
		idx++
	}
	return idx
}

func (p *bufferPool) Get(size int) []byte {
	idx := p.bucketFor(size)
	if v := p.buckets[idx].Get(); v != nil {
		buf := v.([]byte)
		return buf[:0]
	}
	cap := p.min << idx
	return make([]byte, 0, cap)
}

func (p *bufferPool) Put(buf []byte) {
	idx := p.bucketFor(cap(buf))
	p.buckets[idx].Put(buf) //nolint:staticcheck // pool element type fixed by bucket
}

// Frame is a ref-counted inbound message. Shared fan-out (FanOutShared)
// hands the same Frame to multiple consumers; the last Release returns the
// backing buffer to its pool.
type Frame struct {
	Buf    []byte
	Stream StreamID
	Type   MessageType

	ref  int32
	pool *bufferPool
}

func newFrame(pool *bufferPool, buf []byte, stream StreamID, typ MessageType) *Frame {
	return &Frame{Buf: buf, Stream: stream, Type: typ, ref: 1, pool: pool}
}

// Retain increments the ref count for an additional consumer.
func (f *Frame) Retain() {
	f.ref++
}

// Release decrements the ref count, returning the buffer to its pool once
// the last consumer is done with it.
func (f *Frame) Release() {
	f.ref--
	if f.ref <= 0 && f.pool != nil {
		f.pool.Put(f.Buf)
	}
}

// framePool recycles *Frame wrapper objects, distinct from the byte-slab
// bufferPool beneath them.
type framePool struct {
	pool sync.Pool
	buf  *bufferPool
}

func newFramePool(buf *bufferPool) *framePool {
	return &framePool{buf: buf}
}

func (fp *framePool) Get(size int, stream StreamID, typ MessageType) *Frame {
	buf := fp.buf.Get(size)
	if v := fp.pool.Get(); v != nil {
		f := v.(*Frame)
		f.Buf, f.Stream, f.Type, f.ref = buf, stream, typ, 1
		return f
	}
	return newFrame(fp.buf, buf, stream, typ)
}

func (fp *framePool) put(f *Frame) {
	f.Buf = nil
	fp.pool.Put(f) //nolint:staticcheck
}

// OutboundFrame is a pending control/write frame queued on a session.
type OutboundFrame struct {
	Type MessageType
	Buf  []byte
}

// outboundPool recycles OutboundFrame.Buf backing arrays.
type outboundPool struct {
	buf *bufferPool
}

func newOutboundPool(buf *bufferPool) *outboundPool {
	return &outboundPool{buf: buf}
}

func (op *outboundPool) Get(size int) []byte {
	return op.buf.Get(size)
}

func (op *outboundPool) Put(buf []byte) {
	op.buf.Put(buf)
}
