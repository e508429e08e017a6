package fixedpoint

import "l2broker/pkg/exception"

var pow10 = [19]int64{
	1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000,
	1000000000, 10000000000, 100000000000, 1000000000000,
	10000000000000, 100000000000000, 1000000000000000,
	10000000000000000, 100000000000000000, 1000000000000000000,
}

// Rescale converts value*10^exp to the equivalent mantissa at targetExp.
// A symbol's exponent is fixed in its catalog entry at build time, so every
// packet must be renormalized to it. Losing significant digits because
// targetExp is coarser than exp is reported as exception.ErrParseOverflow
// rather than silently truncated, since that would misrepresent the
// venue's price.
func Rescale(value int64, exp, targetExp int8) (int64, error) {
	if exp == targetExp {
		return value, nil
	}
	if exp > targetExp {
		shift := int(exp) - int(targetExp)
		if shift >= len(pow10) {
			return 0, exception.ErrParseOverflow
		}
		scale := pow10[shift]
		if value != 0 && (value > maxInt64/scale || value < minInt64/scale) {
			return 0, exception.ErrParseOverflow
		}
		return value * scale, nil
	}
	shift := int(targetExp) - int(exp)
	if shift >= len(pow10) {
		if value != 0 {
			return 0, exception.ErrParseOverflow
		}
		return 0, nil
	}
	scale := pow10[shift]
	if value%scale != 0 {
		return 0, exception.ErrParseOverflow
	}
	return value / scale, nil
}
