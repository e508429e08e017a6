// Package btcc implements the driver.Driver contract for BTCC's
// method-framed depth feed.
package btcc

import (
	"strings"

	"l2broker/internal/book"
	"l2broker/internal/catalog"
	"l2broker/internal/driver"
	"l2broker/internal/fixedpoint"
	"l2broker/pkg/scanner"
	"l2broker/pkg/transport"
)

const endpoint = "wss://spotprice2.btcccdn.com/ws"

var (
	keyID     = []byte(`"id"`)
	keyMethod = []byte(`"method"`)
	keyBids   = []byte(`"bids":[`)
	keyAsks   = []byte(`"asks":[`)
	keyStatus = []byte(`"status"`)

	methodDepthUpdate = []byte("depth.update")
	statusSuccess     = []byte("success")
)

// Driver speaks BTCC's method-framed WebSocket protocol.
type Driver struct {
	exchange catalog.ExchangeID
}

// NewDriver returns a Driver reporting exchange as its catalog.ExchangeID.
func NewDriver(exchange catalog.ExchangeID) *Driver {
	return &Driver{exchange: exchange}
}

// Exchange implements driver.Driver.
func (d *Driver) Exchange() catalog.ExchangeID { return d.exchange }

// Endpoint implements driver.Driver.
func (d *Driver) Endpoint(catalog.Symbol) string { return endpoint }

// StreamFor implements driver.Driver.
func (d *Driver) StreamFor(sym catalog.Symbol) transport.StreamID {
	return transport.StreamID(sym.ID)
}

// BuildSubscribe implements driver.Driver. BTCC requests a venue-side
// top-32 book at full available precision; the high-pass filter in
// internal/book trims it further if the venue ever sends more.
func (d *Driver) BuildSubscribe(buf []byte, sym catalog.Symbol, req transport.RequestID) []byte {
	buf = append(buf, `{"id":`...)
	buf = appendUint(buf, uint64(req))
	buf = append(buf, `,"method":"depth.subscribe","params":["`...)
	buf = append(buf, marketName(sym)...)
	buf = append(buf, `",32,"0.00000001"]}`...)
	return buf
}

// BuildUnsubscribe implements driver.Driver.
func (d *Driver) BuildUnsubscribe(buf []byte, sym catalog.Symbol, req transport.RequestID) []byte {
	buf = append(buf, `{"id":`...)
	buf = appendUint(buf, uint64(req))
	buf = append(buf, `,"method":"depth.unsubscribe","params":["`...)
	buf = append(buf, marketName(sym)...)
	buf = append(buf, `"]}`...)
	return buf
}

func marketName(sym catalog.Symbol) string {
	return strings.ToUpper(sym.Name)
}

// ParseMessage implements driver.Driver.
func (d *Driver) ParseMessage(payload []byte, sym catalog.Symbol, sink driver.Sink) driver.ParseOutcome {
	if isAck(payload) {
		return driver.OutcomeControlAck
	}

	method, ok := scanner.ScanStringField(payload, keyMethod)
	if !ok || !bytesEqual(method, methodDepthUpdate) {
		return driver.OutcomeIgnored
	}

	sink.BeginPacket()
	applySide(payload, keyBids, book.Bid, sym, sink)
	applySide(payload, keyAsks, book.Ask, sym, sink)
	sink.EndPacket()
	return driver.OutcomeDepthApplied
}

func isAck(payload []byte) bool {
	if _, ok := scanner.ScanUintField(payload, keyID); !ok {
		return false
	}
	status, ok := scanner.ScanStringField(payload, keyStatus)
	return ok && bytesEqual(status, statusSuccess)
}

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
