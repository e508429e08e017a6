package exception

import "github.com/yanun0323/errors"

// Registrar/broker errors surfaced to the consumer.
var (
	ErrNoSuchExchange = errors.New("registrar: no such exchange")
	ErrNotReady       = errors.New("registrar: book not ready")
	ErrShutdown       = errors.New("registrar: broker shut down")
	ErrInboxFull      = errors.New("registrar: unit intent inbox full")
)
