package fixedpoint

import "strconv"

// AppendScaled appends the decimal rendering of value*10^exp to buf and
// returns the extended slice. It is the inverse of ParseSignedScaled and is
// not called on the hot path; in this module only tests call it.
func AppendScaled(buf []byte, value int64, exp int8) []byte {
	if exp >= 0 {
		buf = strconv.AppendInt(buf, value, 10)
		for i := int8(0); i < exp; i++ {
			buf = append(buf, '0')
		}
		return buf
	}

	scale := int(-exp)
	neg := value < 0
	u := uint64(value)
	if neg {
		u = uint64(-value)
	}

	var tmp [32]byte
	digits := strconv.AppendUint(tmp[:0], u, 10)

	if neg {
		buf = append(buf, '-')
	}

	if len(digits) <= scale {
		buf = append(buf, '0', '.')
		for i := 0; i < scale-len(digits); i++ {
			buf = append(buf, '0')
		}
		buf = append(buf, digits...)
		return buf
	}

	idx := len(digits) - scale
	buf = append(buf, digits[:idx]...)
	buf = append(buf, '.')
	buf = append(buf, digits[idx:]...)
	return buf
}

// FormatScaled is a convenience wrapper returning a string.
func FormatScaled(value int64, exp int8) string {
	return string(AppendScaled(make([]byte, 0, 24), value, exp))
}
