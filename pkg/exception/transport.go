package exception

import "github.com/yanun0323/errors"

// Transport errors.
var (
	ErrConnectionClosed = errors.New("transport: connection closed")
	ErrDialFailed        = errors.New("transport: dial failed")
	ErrFrameTooLarge     = errors.New("transport: frame exceeds buffer")
	ErrNotConnected      = errors.New("transport: not connected")
	ErrQueueFull         = errors.New("transport: write queue full")
)
