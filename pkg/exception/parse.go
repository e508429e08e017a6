package exception

import "github.com/yanun0323/errors"

// Fixed-point parser errors.
var (
	ErrParseEmpty    = errors.New("parse: empty input")
	ErrParseBadDigit = errors.New("parse: bad digit")
	ErrParseOverflow = errors.New("parse: i64 overflow")
	ErrParseRange    = errors.New("parse: negative quantity")
)
