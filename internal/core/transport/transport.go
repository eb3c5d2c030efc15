// Package transport provides the WebSocket frame transport for preview
// streams. The backend pushes binary frames, each one a complete compressed
// still image; the client sends nothing but control frames.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// readTimeout bounds the gap between frames before the connection is
// considered dead. Extended by the pong handler and every received frame.
const readTimeout = 60 * time.Second

// Conn is one open preview stream.
type Conn interface {
	// RecvFrame blocks until the next binary frame arrives.
	RecvFrame(ctx context.Context) ([]byte, error)
	// Close closes the underlying connection.
	Close() error
	// Ping sends a WebSocket-level ping frame.
	Ping() error
}

// Dialer opens preview stream connections.
type Dialer interface {
	Dial(ctx context.Context, cameraUniqueID string) (Conn, error)
}

// --- WebSocket Conn implementation ---

type wsConn struct {
	ws  *websocket.Conn
	mu  sync.Mutex // protects writes
	log *slog.Logger
}

func newWSConn(ws *websocket.Conn, log *slog.Logger) *wsConn {
	c := &wsConn{ws: ws, log: log}
	ws.SetPongHandler(func(appData string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return c
}

func (c *wsConn) RecvFrame(_ context.Context) ([]byte, error) {
	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("transport: unexpected message type %d", msgType)
	}
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	return data, nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(5*time.Second))
}

// --- Stream Dialer ---

// StreamDialer connects to the backend's preview stream endpoint.
type StreamDialer struct {
	baseURL string
	log     *slog.Logger
}

// NewStreamDialer creates a dialer for the backend at baseURL
// (http(s) scheme; rewritten to ws(s) when dialing).
func NewStreamDialer(baseURL string, log *slog.Logger) *StreamDialer {
	return &StreamDialer{baseURL: strings.TrimRight(baseURL, "/"), log: log}
}

// Dial opens the frame stream for one camera.
func (d *StreamDialer) Dial(ctx context.Context, cameraUniqueID string) (Conn, error) {
	wsBase := d.baseURL
	if strings.HasPrefix(wsBase, "https://") {
		wsBase = "wss://" + wsBase[len("https://"):]
	} else if strings.HasPrefix(wsBase, "http://") {
		wsBase = "ws://" + wsBase[len("http://"):]
	}

	u := fmt.Sprintf("%s/camera-preview/stream/ws?camera_unique_id=%s", wsBase, url.QueryEscape(cameraUniqueID))

	d.log.Info("dialing preview stream", "url", u, "camera_unique_id", cameraUniqueID)

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	ws, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: HTTP %d: %w", u, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", u, err)
	}
	ws.SetReadDeadline(time.Now().Add(readTimeout))

	d.log.Info("preview stream connected", "camera_unique_id", cameraUniqueID)
	return newWSConn(ws, d.log), nil
}
