package exception

import "github.com/yanun0323/errors"

// Driver/protocol errors.
var (
	ErrProtocol          = errors.New("driver: protocol error")
	ErrUnknownSymbol     = errors.New("driver: unknown symbol in payload")
	ErrSubscribeTimeout  = errors.New("driver: subscribe ack timeout")
	ErrUnsubscribeTimeout = errors.New("driver: unsubscribe ack timeout")
	ErrSequenceGap       = errors.New("driver: unexpected sequence gap")
)
