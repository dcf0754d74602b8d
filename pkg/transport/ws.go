package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/arbor-protocol/arbor-go/pkg/log"
)

// IsWebSocketURL reports whether address names a WebSocket endpoint.
func IsWebSocketURL(address string) bool {
	return strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://")
}

// ConnectWebSocket establishes a WebSocket connection to a device.
//
// WebSocket transport is for devices behind HTTP infrastructure
// (reverse proxies, browser-hosted panels). Each binary WebSocket
// message carries one complete wire message; the TCP length prefix is
// not used because WebSocket frames are already delimited.
func (c *Client) ConnectWebSocket(ctx context.Context, url string) (*WSConn, error) {
	timeout := c.config.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig:  c.tlsConf,
	}

	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	maxSize := c.config.MaxMessageSize
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	ws.SetReadLimit(int64(maxSize))

	wsConn := &WSConn{
		ws:      ws,
		connID:  uuid.New().String(),
		logger:  c.config.Logger,
		closeCh: make(chan struct{}),
	}

	return wsConn, nil
}

// WSConn is a client connection over WebSocket.
type WSConn struct {
	ws      *websocket.Conn
	connID  string
	logger  log.Logger
	closeCh chan struct{}

	closeOnce sync.Once

	// Gorilla permits one concurrent reader and one concurrent writer.
	writeMu sync.Mutex
	readMu  sync.Mutex
}

// ConnID returns the unique connection identifier.
func (c *WSConn) ConnID() string {
	return c.connID
}

// TLSState returns the TLS connection state. For ws:// connections
// the zero state is returned.
func (c *WSConn) TLSState() tls.ConnectionState {
	if tlsConn, ok := c.ws.UnderlyingConn().(*tls.Conn); ok {
		return tlsConn.ConnectionState()
	}
	return tls.ConnectionState{}
}

// LocalAddr returns the local address.
func (c *WSConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

// RemoteAddr returns the remote address.
func (c *WSConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// Send sends a message to the device.
func (c *WSConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("websocket write failed: %w", err)
	}

	if c.logger != nil {
		c.logger.Log(frameEvent(c.connID, data, log.DirectionOut))
	}
	return nil
}

// Receive receives a message with a timeout. A zero timeout blocks
// until a message arrives or the connection closes.
func (c *WSConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if timeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.ws.SetReadDeadline(time.Time{})
	}

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		// Text and ping frames are not part of the protocol
		if msgType != websocket.BinaryMessage {
			continue
		}

		if c.logger != nil {
			c.logger.Log(frameEvent(c.connID, data, log.DirectionIn))
		}
		return data, nil
	}
}

// SendPing sends a ping control message.
func (c *WSConn) SendPing(seq uint32) error {
	msg, err := EncodePing(seq)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendClose sends a close control message.
func (c *WSConn) SendClose() error {
	msg, err := EncodeClose()
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Close closes the connection.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)

		// Best-effort close handshake before dropping the socket
		c.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}
