package mqttws

import (
	"errors"
	"io"
)

// ConnackCode is the CONNECT return code carried in a CONNACK packet.
type ConnackCode byte

// CONNACK return codes defined by MQTT 3.1.1.
const (
	ConnackAccepted               ConnackCode = 0x00
	ConnackRefusedProtocolVersion ConnackCode = 0x01
	ConnackRefusedIdentifier      ConnackCode = 0x02
	ConnackServerUnavailable      ConnackCode = 0x03
	ConnackBadCredentials         ConnackCode = 0x04
	ConnackNotAuthorized          ConnackCode = 0x05
)

// String returns the string representation of the return code.
func (c ConnackCode) String() string {
	switch c {
	case ConnackAccepted:
		return "connection accepted"
	case ConnackRefusedProtocolVersion:
		return "unacceptable protocol version"
	case ConnackRefusedIdentifier:
		return "identifier rejected"
	case ConnackServerUnavailable:
		return "server unavailable"
	case ConnackBadCredentials:
		return "bad username or password"
	case ConnackNotAuthorized:
		return "not authorized"
	default:
		return "unknown"
	}
}

// Valid returns true if the return code is defined by MQTT 3.1.1.
func (c ConnackCode) Valid() bool {
	return c <= ConnackNotAuthorized
}

var ErrInvalidConnackCode = errors.New("invalid CONNACK return code")

// ConnackPacket represents an MQTT CONNACK packet.
type ConnackPacket struct {
	SessionPresent bool
	ReturnCode     ConnackCode
}

// Type returns the packet type.
func (p *ConnackPacket) Type() PacketType { return PacketCONNACK }

// Encode writes the packet to the writer.
func (p *ConnackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	header := FixedHeader{
		PacketType:      PacketCONNACK,
		Flags:           0x00,
		RemainingLength: 2,
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	var ackFlags byte
	if p.SessionPresent {
		ackFlags = 0x01
	}

	n, err := w.Write([]byte{ackFlags, byte(p.ReturnCode)})
	return total + n, err
}

// Decode reads the packet from the reader.
func (p *ConnackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketCONNACK {
		return 0, ErrInvalidPacketType
	}

	var buf [2]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return n, truncated(err)
	}

	p.SessionPresent = buf[0]&0x01 != 0
	p.ReturnCode = ConnackCode(buf[1])

	return n, p.Validate()
}

// Validate validates the packet contents.
func (p *ConnackPacket) Validate() error {
	if !p.ReturnCode.Valid() {
		return ErrInvalidConnackCode
	}
	if p.SessionPresent && p.ReturnCode != ConnackAccepted {
		// A refused connection never reports a present session
		return ErrProtocolViolation
	}
	return nil
}
