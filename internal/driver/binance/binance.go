// Package binance implements the driver.Driver contract for Binance's
// combined-stream depth feed.
package binance

import (
	"strings"

	"l2broker/internal/book"
	"l2broker/internal/catalog"
	"l2broker/internal/driver"
	"l2broker/internal/fixedpoint"
	"l2broker/pkg/scanner"
	"l2broker/pkg/transport"
)

const endpoint = "wss://stream.binance.com:9443/ws"

var (
	keyEvent  = []byte(`"e"`)
	keyID     = []byte(`"id"`)
	keyResult = []byte(`"result"`)
	keyBids   = []byte(`"b":[`)
	keyAsks   = []byte(`"a":[`)

	eventDepthUpdate = []byte("depthUpdate")
)

// Driver speaks the Binance depth-stream wire protocol.
type Driver struct {
	exchange catalog.ExchangeID
}

// NewDriver returns a Driver reporting exchange as its catalog.ExchangeID.
func NewDriver(exchange catalog.ExchangeID) *Driver {
	return &Driver{exchange: exchange}
}

// Exchange implements driver.Driver.
func (d *Driver) Exchange() catalog.ExchangeID { return d.exchange }

// Endpoint implements driver.Driver. Binance multiplexes every stream over
// one raw /ws connection via subscribe/unsubscribe control frames, so the
// endpoint does not vary by symbol.
func (d *Driver) Endpoint(catalog.Symbol) string { return endpoint }

// StreamFor implements driver.Driver.
func (d *Driver) StreamFor(sym catalog.Symbol) transport.StreamID {
	return transport.StreamID(sym.ID)
}

// BuildSubscribe implements driver.Driver.
func (d *Driver) BuildSubscribe(buf []byte, sym catalog.Symbol, req transport.RequestID) []byte {
	return buildControl(buf, "SUBSCRIBE", streamName(sym), req)
}

// BuildUnsubscribe implements driver.Driver.
func (d *Driver) BuildUnsubscribe(buf []byte, sym catalog.Symbol, req transport.RequestID) []byte {
	return buildControl(buf, "UNSUBSCRIBE", streamName(sym), req)
}

func buildControl(buf []byte, method, stream string, req transport.RequestID) []byte {
	buf = append(buf, `{"method":"`...)
	buf = append(buf, method...)
	buf = append(buf, `","params":["`...)
	buf = append(buf, stream...)
	buf = append(buf, `"],"id":`...)
	buf = appendUint(buf, uint64(req))
	buf = append(buf, '}')
	return buf
}

func streamName(sym catalog.Symbol) string {
	return strings.ToLower(sym.Name) + "@depth@100ms"
}

// ParseMessage implements driver.Driver. It never unmarshals JSON: every
// field it needs is pulled out with pkg/scanner's zero-copy scanners, the
// same discipline this package's Codec uses for ack detection.
func (d *Driver) ParseMessage(payload []byte, sym catalog.Symbol, sink driver.Sink) driver.ParseOutcome {
	if isControlAck(payload) {
		return driver.OutcomeControlAck
	}

	event, ok := scanner.ScanStringField(payload, keyEvent)
	if !ok || !bytesEqual(event, eventDepthUpdate) {
		return driver.OutcomeIgnored
	}

	sink.BeginPacket()
	applySide(payload, keyBids, book.Bid, sym, sink)
	applySide(payload, keyAsks, book.Ask, sym, sink)
	sink.EndPacket()
	return driver.OutcomeDepthApplied
}

func isControlAck(payload []byte) bool {
	if _, ok := scanner.ScanUintField(payload, keyID); !ok {
		return false
	}
	return scanner.IndexOf(payload, keyResult) >= 0
}

// applySide scans a `"b":[["price","qty"],...]` or `"a":[...]` array
// in-place and upserts each pair, without ever materializing a slice of
// strings or running it through encoding/json.
func applySide(payload []byte, key []byte, side book.Side, sym catalog.Symbol, sink driver.Sink) {
	idx := scanner.IndexOf(payload, key)
	if idx < 0 {
		return
	}
	i := idx + len(key)
	for i < len(payload) && payload[i] != ']' {
		priceStr, qtyStr, next, ok := scanner.NextQuotedPair(payload, i)
		if !ok {
			return
		}
		i = next
		price, priceExp, err := fixedpoint.ParseUnsignedScaled(priceStr)
		if err != nil {
			continue
		}
		qty, qtyExp, err := fixedpoint.ParseUnsignedScaled(qtyStr)
		if err != nil {
			continue
		}
		tick, err := fixedpoint.Rescale(price, priceExp, sym.PriceExp)
		if err != nil {
			continue
		}
		size, err := fixedpoint.Rescale(qty, qtyExp, sym.QtyExp)
		if err != nil {
			continue
		}
		_ = sink.Upsert(side, book.Tick(tick), book.Qty(size))
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendUint(dst []byte, v uint64) []byte {
	if v == 0 {
		return append(dst, '0')
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return append(dst, buf[i:]...)
}
