package mediastream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientTunnelWebSocket carries the RTSP byte stream inside binary WebSocket messages.
// Message boundaries carry no meaning: the demultiplexer frames the stream.
type clientTunnelWebSocket struct {
	*websocket.Conn

	pending    []byte
	writeMutex sync.Mutex
}

func newClientTunnelWebSocket(
	ctx context.Context,
	dialContext func(ctx context.Context, network, address string) (net.Conn, error),
	ur string,
) (net.Conn, error) {
	dialer := &websocket.Dialer{
		NetDialContext:   dialContext,
		Subprotocols:     []string{"binary"},
		HandshakeTimeout: 10 * time.Second,
	}

	wc, _, err := dialer.DialContext(ctx, ur, nil) //nolint:bodyclose
	if err != nil {
		return nil, err
	}

	return &clientTunnelWebSocket{Conn: wc}, nil
}

// Read implements net.Conn.
func (tu *clientTunnelWebSocket) Read(p []byte) (int, error) {
	for len(tu.pending) == 0 {
		typ, msg, err := tu.ReadMessage()
		if err != nil {
			return 0, err
		}

		if typ != websocket.BinaryMessage {
			return 0, fmt.Errorf("unexpected message type %v", typ)
		}

		tu.pending = msg
	}

	n := copy(p, tu.pending)
	tu.pending = tu.pending[n:]
	return n, nil
}

// Write implements net.Conn.
func (tu *clientTunnelWebSocket) Write(p []byte) (int, error) {
	tu.writeMutex.Lock()
	defer tu.writeMutex.Unlock()

	err := tu.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetDeadline implements net.Conn.
func (tu *clientTunnelWebSocket) SetDeadline(t time.Time) error {
	err := tu.SetReadDeadline(t)
	if err != nil {
		return err
	}
	return tu.SetWriteDeadline(t)
}
