package book

import "testing"

func BenchmarkUpsertPacket(b *testing.B) {
	book := New()
	for i := 0; i < b.N; i++ {
		book.BeginPacket()
		for p := Tick(1); p <= 40; p++ {
			_ = book.Upsert(Bid, p, Qty(p))
		}
		book.EndPacket()
	}
}

func BenchmarkSnapshot(b *testing.B) {
	book := New()
	book.BeginPacket()
	for p := Tick(1); p <= Depth; p++ {
		_ = book.Upsert(Bid, p, Qty(p))
	}
	book.EndPacket()

	var bids, asks [Depth]Level
	for i := 0; i < b.N; i++ {
		_, _ = book.Snapshot(&bids, &asks)
	}
}
