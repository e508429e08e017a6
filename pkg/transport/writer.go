package transport

import "l2broker/pkg/exception"

// writer is a bounded outbound queue draining into one Conn. A session owns
// exactly one writer, drained by the session's Run goroutine. Subscribe
// replays and pings do not go through it; Run writes them to the Conn
// directly, so Conn.WriteMessage is still only ever called from that one
// goroutine.
type writer struct {
	ch     chan OutboundFrame
	pool   *outboundPool
	policy OverflowPolicy
}

func newWriter(size int, pool *outboundPool, policy OverflowPolicy) *writer {
	return &writer{
		ch:     make(chan OutboundFrame, size),
		pool:   pool,
		policy: policy,
	}
}

// Enqueue submits a frame for writing. Behavior on a full queue depends on
// the writer's OverflowPolicy; OverflowBlock blocks the caller.
func (w *writer) Enqueue(f OutboundFrame) error {
	switch w.policy {
	case OverflowDropNewest:
		select {
		case w.ch <- f:
			return nil
		default:
			w.pool.Put(f.Buf)
			return exception.ErrQueueFull
		}
	case OverflowDropOldest:
		for {
			select {
			case w.ch <- f:
				return nil
			default:
				select {
				case old := <-w.ch:
					w.pool.Put(old.Buf)
				default:
				}
			}
		}
	default: // OverflowBlock
		w.ch <- f
		return nil
	}
}

func (w *writer) Chan() <-chan OutboundFrame { return w.ch }
