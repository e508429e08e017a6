package fixedpoint

import (
	"testing"

	"l2broker/pkg/exception"
)

func TestParseSignedScaled(t *testing.T) {
	testCases := []struct {
		desc      string
		input     string
		wantValue int64
		wantExp   int8
		wantErr   error
	}{
		{"integer", "123", 123, 0, nil},
		{"negative integer", "-123", -123, 0, nil},
		{"decimal", "1.23", 123, -2, nil},
		{"negative decimal", "-1.23", -123, -2, nil},
		{"trailing zero fraction", "1.20", 120, -2, nil},
		{"explicit positive exponent", "1.2e3", 12, 2, nil},
		{"explicit negative exponent", "1.2e-3", 12, -4, nil},
		{"leading plus", "+5", 5, 0, nil},
		{"zero", "0", 0, 0, nil},
		{"empty", "", 0, 0, exception.ErrParseEmpty},
		{"sign only", "-", 0, 0, exception.ErrParseEmpty},
		{"bad digit", "12x4", 0, 0, exception.ErrParseBadDigit},
		{"nan marker", "NaN", 0, 0, exception.ErrParseBadDigit},
		{"inf marker", "Inf", 0, 0, exception.ErrParseBadDigit},
		{"overflow", "99999999999999999999", 0, 0, exception.ErrParseOverflow},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			v, e, err := ParseSignedScaled([]byte(tc.input))
			if tc.wantErr != nil {
				if err == nil {
					t.Fatalf("expected error %v, got nil (value=%d exp=%d)", tc.wantErr, v, e)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v != tc.wantValue || e != tc.wantExp {
				t.Fatalf("got (%d, %d), want (%d, %d)", v, e, tc.wantValue, tc.wantExp)
			}
		})
	}
}

func TestParseUnsignedScaledRejectsNegative(t *testing.T) {
	_, _, err := ParseUnsignedScaled([]byte("-1.5"))
	if err != exception.ErrParseRange {
		t.Fatalf("expected ErrParseRange, got %v", err)
	}
}

func TestParseUnsignedScaled(t *testing.T) {
	v, e, err := ParseUnsignedScaled([]byte("0.00000001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1 || e != -8 {
		t.Fatalf("got (%d, %d), want (1, -8)", v, e)
	}
}

func TestRoundTripScaled(t *testing.T) {
	inputs := []string{"0", "1", "-1", "123.456", "-0.001", "1000000.00000001"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			v, e, err := ParseSignedScaled([]byte(in))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got := FormatScaled(v, e)
			v2, e2, err := ParseSignedScaled([]byte(got))
			if err != nil {
				t.Fatalf("re-parse %q: %v", got, err)
			}
			if v2 != v || e2 != e {
				t.Fatalf("round trip mismatch: %q -> (%d,%d) -> %q -> (%d,%d)", in, v, e, got, v2, e2)
			}
		})
	}
}
