//go:build !js || !wasm

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

type nativeChannel struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewChannel wraps an established gorilla connection, for servers.
func NewChannel(conn *websocket.Conn) Channel {
	return &nativeChannel{conn: conn}
}

func (n *nativeChannel) Send(f Frame) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return errors.New("not connected")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return n.conn.WriteMessage(websocket.TextMessage, data)
}

func (n *nativeChannel) Receive() (Frame, error) {
	n.mu.Lock()
	conn := n.conn
	n.mu.Unlock()

	if conn == nil {
		return Frame{}, errors.New("not connected")
	}
	_, message, err := conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	return ParseFrame(message)
}

func (n *nativeChannel) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		err := n.conn.Close()
		n.conn = nil
		return err
	}
	return nil
}

func (n *nativeChannel) IsConnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn != nil
}

func dialChannel(ctx context.Context, url string) (Channel, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &nativeChannel{conn: conn}, nil
}
