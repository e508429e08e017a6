package btcc

import (
	"testing"

	"l2broker/internal/book"
	"l2broker/internal/catalog"
	"l2broker/internal/driver"
)

type recordingSink struct {
	began  int
	ended  int
	levels []book.Level
	sides  []book.Side
}

func (s *recordingSink) BeginPacket() { s.began++ }
func (s *recordingSink) EndPacket()   { s.ended++ }
func (s *recordingSink) Upsert(side book.Side, price book.Tick, qty book.Qty) error {
	s.sides = append(s.sides, side)
	s.levels = append(s.levels, book.Level{Price: price, Qty: qty})
	return nil
}

func testSymbol(t *testing.T) catalog.Symbol {
	t.Helper()
	reg := catalog.NewRegistry()
	ex, err := reg.AddExchange("btcc")
	if err != nil {
		t.Fatal(err)
	}
	id, err := reg.AddSymbol(ex, "btcusdt", -8, -8, catalog.ProductSpot)
	if err != nil {
		t.Fatal(err)
	}
	sym, ok := reg.Symbol(id)
	if !ok {
		t.Fatal("symbol not found")
	}
	return sym
}

func TestBuildSubscribeFrame(t *testing.T) {
	d := NewDriver(2)
	sym := testSymbol(t)
	buf := d.BuildSubscribe(nil, sym, 2)
	want := `{"id":2,"method":"depth.subscribe","params":["BTCUSDT",32,"0.00000001"]}`
	if string(buf) != want {
		t.Fatalf("got %q, want %q", buf, want)
	}
}

func TestParseMessageAck(t *testing.T) {
	d := NewDriver(2)
	sym := testSymbol(t)
	sink := &recordingSink{}

	outcome := d.ParseMessage([]byte(`{"id":2,"result":{"status":"success"}}`), sym, sink)
	if outcome != driver.OutcomeControlAck {
		t.Fatalf("outcome = %v, want OutcomeControlAck", outcome)
	}
}

func TestParseMessageDepthUpdate(t *testing.T) {
	d := NewDriver(2)
	sym := testSymbol(t)
	sink := &recordingSink{}

	payload := []byte(`{"method":"depth.update","params":[true,` +
		`{"bids":[["27000.50","1.2"]],"asks":[["27001.00","0.5"]],"time":1},"BTCUSDT"]}`)

	outcome := d.ParseMessage(payload, sym, sink)
	if outcome != driver.OutcomeDepthApplied {
		t.Fatalf("outcome = %v, want OutcomeDepthApplied", outcome)
	}
	if len(sink.levels) != 2 {
		t.Fatalf("levels = %v, want 2 entries", sink.levels)
	}
	if sink.sides[0] != book.Bid || sink.sides[1] != book.Ask {
		t.Fatalf("sides = %v, want [Bid Ask]", sink.sides)
	}
}
