package transport

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
)

// GorillaDialer is the concrete WebSocket transport treated as an external
// collaborator by the core: a thin wrapper over gorilla/websocket.Dialer
// with a handshake timeout and context-bound DialContext.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a gorilla/websocket connection and wraps it to satisfy Conn.
func (d GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return gorillaConn{conn}, nil
}

// gorillaConn adapts *websocket.Conn to the Conn interface.
type gorillaConn struct {
	c *websocket.Conn
}

func (g gorillaConn) ReadMessage() (MessageType, []byte, error) {
	typ, payload, err := g.c.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	return MessageType(typ), payload, nil
}

func (g gorillaConn) WriteMessage(typ MessageType, payload []byte) error {
	switch typ {
	case MessagePing:
		return g.c.WriteMessage(websocket.PingMessage, payload)
	case MessagePong:
		return g.c.WriteMessage(websocket.PongMessage, payload)
	case MessageBinary:
		return g.c.WriteMessage(websocket.BinaryMessage, payload)
	default:
		return g.c.WriteMessage(websocket.TextMessage, payload)
	}
}

func (g gorillaConn) Close() error {
	return g.c.Close()
}
