package fixedpoint

import "testing"

func TestRescaleToFinerExponent(t *testing.T) {
	got, err := Rescale(12345, -2, -4) // 123.45 at exp=-4 -> 1234500
	if err != nil {
		t.Fatal(err)
	}
	if got != 1234500 {
		t.Fatalf("got %d, want 1234500", got)
	}
}

func TestRescaleToCoarserExponentExact(t *testing.T) {
	got, err := Rescale(1234500, -4, -2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 12345 {
		t.Fatalf("got %d, want 12345", got)
	}
}

func TestRescaleToCoarserExponentLossyRejected(t *testing.T) {
	_, err := Rescale(12345, -4, -2)
	if err == nil {
		t.Fatal("expected error losing significant digits")
	}
}

func TestRescaleSameExponentIsNoop(t *testing.T) {
	got, err := Rescale(42, -3, -3)
	if err != nil || got != 42 {
		t.Fatalf("got %d, %v, want 42, nil", got, err)
	}
}
