package mqttws

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
)

// ErrTLSRequired is returned when TLS configuration is required but not provided.
var ErrTLSRequired = errors.New("TLS configuration is required for QUIC")

const quicReadChunk = 4096

// QUICTransport rides a bidirectional QUIC stream as a transport. A stream
// has no message boundaries, so ReadFrame returns whatever chunk is
// available; the Assembler restores packet boundaries on top.
type QUICTransport struct {
	conn    *quic.Conn
	stream  *quic.Stream
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

func newQUICTransport(conn *quic.Conn, stream *quic.Stream) *QUICTransport {
	return &QUICTransport{conn: conn, stream: stream}
}

// ReadFrame returns the next chunk of stream bytes.
func (t *QUICTransport) ReadFrame() ([]byte, error) {
	buf := make([]byte, quicReadChunk)
	n, err := t.stream.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}

// WriteFrame writes one frame to the stream.
func (t *QUICTransport) WriteFrame(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := t.stream.Write(data)
	return err
}

// Close closes the stream and the QUIC connection.
func (t *QUICTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if err := t.stream.Close(); err != nil {
		return err
	}
	return t.conn.CloseWithError(0, "")
}

// RemoteAddr returns the remote network address.
func (t *QUICTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// QUICDialer connects to brokers over QUIC.
type QUICDialer struct {
	// TLSConfig is the TLS configuration for the QUIC connection.
	// QUIC requires TLS 1.3, so this must be configured.
	TLSConfig *tls.Config

	// QUICConfig is the QUIC configuration.
	QUICConfig *quic.Config
}

// NewQUICDialer creates a new QUIC dialer with default configuration.
func NewQUICDialer(tlsConfig *tls.Config) *QUICDialer {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{WebSocketSubprotocol},
		}
	}
	return &QUICDialer{
		TLSConfig: tlsConfig,
	}
}

// Dial connects to the QUIC address ("host:port").
func (d *QUICDialer) Dial(ctx context.Context, address string) (Transport, error) {
	tlsConfig := d.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
			NextProtos: []string{WebSocketSubprotocol},
		}
	}

	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{WebSocketSubprotocol}
	}

	conn, err := quic.DialAddr(ctx, address, tlsConfig, d.QUICConfig)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, err
	}

	return newQUICTransport(conn, stream), nil
}

// QUICListener listens for broker connections over QUIC.
type QUICListener struct {
	listener *quic.Listener
}

// NewQUICListener creates a new QUIC listener.
// TLS configuration is required for QUIC (TLS 1.3).
func NewQUICListener(addr string, tlsConfig *tls.Config, quicConfig *quic.Config) (*QUICListener, error) {
	if tlsConfig == nil {
		return nil, ErrTLSRequired
	}

	if tlsConfig.MinVersion < tls.VersionTLS13 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.MinVersion = tls.VersionTLS13
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.NextProtos = []string{WebSocketSubprotocol}
	}

	listener, err := quic.ListenAddr(addr, tlsConfig, quicConfig)
	if err != nil {
		return nil, err
	}

	return &QUICListener{listener: listener}, nil
}

// Accept waits for the next QUIC connection and its first bidirectional
// stream, returning them as one transport.
func (l *QUICListener) Accept(ctx context.Context) (Transport, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to accept stream")
		return nil, err
	}

	return newQUICTransport(conn, stream), nil
}

// Close closes the QUIC listener.
func (l *QUICListener) Close() error {
	return l.listener.Close()
}

// Addr returns the listener's network address.
func (l *QUICListener) Addr() net.Addr {
	return l.listener.Addr()
}
