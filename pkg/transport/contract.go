package transport

import "context"

// Conn is the minimal duplex message connection a Session drives. The
// gorilla/websocket-backed implementation lives in dialer.go; tests use a
// fake satisfying the same interface.
type Conn interface {
	ReadMessage() (MessageType, []byte, error)
	WriteMessage(MessageType, []byte) error
	Close() error
}

// Dialer opens a Conn to a URL. Separated from Conn so sessions can be
// tested without a real socket.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// StreamDecoder extracts the StreamID a raw inbound payload belongs to,
// without fully parsing it — the parse itself happens later, in the
// exchange driver on the pipeline unit's thread, not here.
type StreamDecoder interface {
	DecodeStream(payload []byte) (StreamID, bool)
}

// ControlEncoder builds the wire bytes for a subscribe/unsubscribe control
// message for one stream, appending into buf and returning the grown slice.
type ControlEncoder interface {
	EncodeSubscribe(buf []byte, stream StreamID, req RequestID) []byte
	EncodeUnsubscribe(buf []byte, stream StreamID, req RequestID) []byte
}

// MetaFunc optionally derives router metadata (e.g. an ingest timestamp)
// attached alongside a routed Frame.
type MetaFunc func(payload []byte) any
