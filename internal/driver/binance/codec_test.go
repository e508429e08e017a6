package binance

import "testing"

func TestCodecEncodeSubscribeRoundTripsToDecodeAck(t *testing.T) {
	drv := NewDriver(1)
	codec := NewCodec(drv)
	sym := testSymbol(t)
	stream := drv.StreamFor(sym)
	codec.Register(stream, sym)

	buf := codec.EncodeSubscribe(nil, stream, 9)
	if string(buf) == "" {
		t.Fatal("expected non-empty subscribe frame")
	}

	got, ok := codec.DecodeStream([]byte(`{"result":null,"id":9}`))
	if !ok || got != stream {
		t.Fatalf("DecodeStream = (%v, %v), want (%v, true)", got, ok, stream)
	}
}

func TestCodecDecodeStreamMatchesDepthUpdateBySymbol(t *testing.T) {
	drv := NewDriver(1)
	codec := NewCodec(drv)
	sym := testSymbol(t)
	stream := drv.StreamFor(sym)
	codec.Register(stream, sym)

	got, ok := codec.DecodeStream([]byte(`{"e":"depthUpdate","s":"BNBBTC"}`))
	if !ok || got != stream {
		t.Fatalf("DecodeStream = (%v, %v), want (%v, true)", got, ok, stream)
	}
}

func TestCodecUnregisterStopsMatching(t *testing.T) {
	drv := NewDriver(1)
	codec := NewCodec(drv)
	sym := testSymbol(t)
	stream := drv.StreamFor(sym)
	codec.Register(stream, sym)
	codec.Unregister(stream)

	_, ok := codec.DecodeStream([]byte(`{"e":"depthUpdate","s":"BNBBTC"}`))
	if ok {
		t.Fatal("expected no match after Unregister")
	}
}
