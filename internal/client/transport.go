package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the duplex connection to the relay. One conversation, one
// transport. The event loop is the sole sender; the read pump is the sole
// reader.
type Transport interface {
	Send(v any) error
	ReadMessage() ([]byte, error)
	Close() error
}

type wsTransport struct {
	conn *websocket.Conn
}

// DialTransport connects to the relay's websocket endpoint.
func DialTransport(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Send(v any) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (t *wsTransport) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "hangup"), deadline)
	return t.conn.Close()
}
