package mqttws

import (
	"context"
	"errors"
	"net"
	"sync"
)

// ErrTransportClosed is returned for operations on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// Transport is an ordered, reliable stream of opaque binary fragments in one
// direction and a binary-frame send operation in the other. Fragments may
// split control packets at any byte boundary; the Assembler restores packet
// boundaries. The reference transport rides WebSocket binary frames.
type Transport interface {
	// ReadFrame returns the next binary fragment. A closed transport
	// returns an error; that is the connection's only cancellation signal.
	ReadFrame() ([]byte, error)

	// WriteFrame sends one binary frame.
	WriteFrame(data []byte) error

	// Close closes the transport.
	Close() error

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr
}

// TransportDialer establishes client transports.
type TransportDialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (Transport, error)
}

// PipeTransport is an in-memory Transport connected to a peer, for tests and
// in-process wiring. Frames written on one side arrive on the other.
type PipeTransport struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}
	// closeOnce is shared by both ends; closing either end closes the pipe.
	closeOnce *sync.Once
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

// NewPipeTransport creates a connected pair of in-memory transports.
func NewPipeTransport() (*PipeTransport, *PipeTransport) {
	a := make(chan []byte, 16)
	b := make(chan []byte, 16)
	done := make(chan struct{})
	once := &sync.Once{}

	return &PipeTransport{in: a, out: b, done: done, closeOnce: once},
		&PipeTransport{in: b, out: a, done: done, closeOnce: once}
}

// ReadFrame returns the next frame written by the peer.
func (t *PipeTransport) ReadFrame() ([]byte, error) {
	select {
	case data := <-t.in:
		return data, nil
	case <-t.done:
		// Drain frames that were in flight before close
		select {
		case data := <-t.in:
			return data, nil
		default:
			return nil, ErrTransportClosed
		}
	}
}

// WriteFrame sends one frame to the peer.
func (t *PipeTransport) WriteFrame(data []byte) error {
	frame := make([]byte, len(data))
	copy(frame, data)

	// Check done first: with buffered channels both select cases can be
	// ready after close, and a random pick must not let the write succeed.
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.out <- frame:
		return nil
	case <-t.done:
		return ErrTransportClosed
	}
}

// Close closes both ends of the pipe.
func (t *PipeTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	return nil
}

// RemoteAddr returns a placeholder pipe address.
func (t *PipeTransport) RemoteAddr() net.Addr {
	return pipeAddr{}
}
