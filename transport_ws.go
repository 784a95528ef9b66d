package mqttws

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketSubprotocol is the MQTT WebSocket subprotocol name.
const WebSocketSubprotocol = "mqtt"

// WSTransport rides WebSocket binary messages as transport frames.
// Writes are serialized: publish fan-out and handler responses may target
// the same connection concurrently.
type WSTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWSTransport wraps an upgraded WebSocket connection.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn}
}

// ReadFrame returns the next binary message.
// Non-binary message types are a protocol violation.
func (t *WSTransport) ReadFrame() ([]byte, error) {
	messageType, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	if messageType != websocket.BinaryMessage {
		return nil, ErrProtocolViolation
	}

	return data, nil
}

// WriteFrame sends one binary message.
func (t *WSTransport) WriteFrame(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close closes the WebSocket connection.
func (t *WSTransport) Close() error {
	return t.conn.Close()
}

// RemoteAddr returns the remote network address.
func (t *WSTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// WSDialer connects to brokers over WebSocket.
type WSDialer struct {
	// Dialer is the underlying WebSocket dialer.
	Dialer *websocket.Dialer

	// Header is the HTTP header to send with the handshake.
	Header http.Header
}

// NewWSDialer creates a new WebSocket dialer with the MQTT subprotocol.
func NewWSDialer() *WSDialer {
	return &WSDialer{
		Dialer: &websocket.Dialer{
			Subprotocols:    []string{WebSocketSubprotocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Dial connects to the WebSocket address.
func (d *WSDialer) Dial(ctx context.Context, address string) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := d.Header
	if header == nil {
		header = http.Header{}
	}

	conn, _, err := dialer.DialContext(ctx, address, header)
	if err != nil {
		return nil, err
	}

	return NewWSTransport(conn), nil
}

// WSHandler is an http.Handler that upgrades connections to WebSocket and
// hands the resulting transport to OnConnect.
type WSHandler struct {
	// Upgrader is the WebSocket upgrader.
	Upgrader websocket.Upgrader

	// OnConnect receives each upgraded transport. The handler should drive
	// the connection until it closes.
	OnConnect func(t Transport)

	// AllowedOrigins is a list of allowed origins for WebSocket connections.
	// If nil or empty, origin checking is strict (Origin must match the Host
	// header). Use "*" to allow all origins.
	AllowedOrigins []string
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(onConnect func(t Transport)) *WSHandler {
	h := &WSHandler{
		OnConnect: onConnect,
	}
	h.Upgrader = websocket.Upgrader{
		Subprotocols:    []string{WebSocketSubprotocol},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin validates the Origin header for WebSocket connections.
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// No Origin header: non-browser client, allow
	if origin == "" {
		return true
	}

	if len(h.AllowedOrigins) > 0 {
		for _, allowed := range h.AllowedOrigins {
			if allowed == "*" || origin == allowed {
				return true
			}
		}
		return false
	}

	// Default: Origin host must match the Host header
	originHost := extractHost(origin)
	if originHost == "" || r.Host == "" {
		return false
	}

	return originHost == r.Host
}

// extractHost extracts the host:port from a URL string.
func extractHost(urlStr string) string {
	var start int
	switch {
	case len(urlStr) > 8 && urlStr[:8] == "https://":
		start = 8
	case len(urlStr) > 7 && urlStr[:7] == "http://":
		start = 7
	case len(urlStr) > 6 && urlStr[:6] == "wss://":
		start = 6
	case len(urlStr) > 5 && urlStr[:5] == "ws://":
		start = 5
	default:
		return ""
	}

	end := len(urlStr)
	for i := start; i < len(urlStr); i++ {
		if urlStr[i] == '/' {
			end = i
			break
		}
	}

	return urlStr[start:end]
}

// ServeHTTP implements http.Handler.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if h.OnConnect != nil {
		h.OnConnect(NewWSTransport(conn))
	}
}
