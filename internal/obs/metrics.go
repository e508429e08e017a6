// Package obs collects lightweight counters and latency stats for the
// broker's subscribe/unsubscribe path and its pipeline units.
package obs

import (
	"sync/atomic"
	"time"

	"l2broker/internal/driver"
)

const maxParseOutcome = int(driver.OutcomeParseError)

// Metrics collects counters across every pipeline unit and the registrar.
// All fields are updated with atomics so one *Metrics can be shared freely.
type Metrics struct {
	outcomeCounts [maxParseOutcome + 1]uint64

	subscribeCount   uint64
	unsubscribeCount uint64
	compactionCount  uint64
	seqlockRetries   uint64
	inboxFull        uint64

	subscribeAckLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot is a point-in-time view of every metric.
type Snapshot struct {
	OutcomeCounts       map[driver.ParseOutcome]uint64
	SubscribeCount      uint64
	UnsubscribeCount    uint64
	CompactionCount     uint64
	SeqlockRetries      uint64
	InboxFull           uint64
	SubscribeAckLatency LatencySnapshot
}

// NewMetrics allocates an empty metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveOutcome records one driver.ParseMessage result.
func (m *Metrics) ObserveOutcome(o driver.ParseOutcome) {
	if m == nil {
		return
	}
	idx := int(o)
	if idx >= 0 && idx < len(m.outcomeCounts) {
		atomic.AddUint64(&m.outcomeCounts[idx], 1)
	}
}

// IncSubscribe records a 0→1 refcount transition.
func (m *Metrics) IncSubscribe() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.subscribeCount, 1)
}

// IncUnsubscribe records an N→0 refcount transition.
func (m *Metrics) IncUnsubscribe() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.unsubscribeCount, 1)
}

// IncCompaction records one end_packet-triggered tombstone compaction.
func (m *Metrics) IncCompaction() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.compactionCount, 1)
}

// IncSeqlockRetry records one Snapshot retry caused by a concurrent writer.
func (m *Metrics) IncSeqlockRetry() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.seqlockRetries, 1)
}

// IncInboxFull records an intent dropped because a unit's inbox was full.
func (m *Metrics) IncInboxFull() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.inboxFull, 1)
}

// ObserveSubscribeAck measures time from build_subscribe to its ack.
func (m *Metrics) ObserveSubscribeAck(d time.Duration) {
	if m == nil {
		return
	}
	m.subscribeAckLatency.Observe(d)
}

// Snapshot returns a copy of the current metric values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	outcomes := make(map[driver.ParseOutcome]uint64)
	for i := range m.outcomeCounts {
		if v := atomic.LoadUint64(&m.outcomeCounts[i]); v > 0 {
			outcomes[driver.ParseOutcome(i)] = v
		}
	}
	return Snapshot{
		OutcomeCounts:       outcomes,
		SubscribeCount:      atomic.LoadUint64(&m.subscribeCount),
		UnsubscribeCount:    atomic.LoadUint64(&m.unsubscribeCount),
		CompactionCount:     atomic.LoadUint64(&m.compactionCount),
		SeqlockRetries:      atomic.LoadUint64(&m.seqlockRetries),
		InboxFull:           atomic.LoadUint64(&m.inboxFull),
		SubscribeAckLatency: m.subscribeAckLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
