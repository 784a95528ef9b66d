package mqttws

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Protocol identification for MQTT 3.1.1.
const (
	ProtocolName  = "MQTT"
	ProtocolLevel = 4
)

var (
	ErrInvalidWillQoS       = errors.New("invalid will QoS")
	ErrInvalidConnectFlags  = errors.New("invalid connect flags")
	ErrPasswordWithoutLogin = errors.New("password flag set without username flag")
)

// VersionError reports a CONNECT whose protocol name or level is not
// MQTT 3.1.1. Unlike other decode errors it still gets a wire-level answer:
// a CONNACK carrying ReturnCode.
type VersionError struct {
	Detail string
}

// Error implements the error interface.
func (e *VersionError) Error() string {
	return "unacceptable protocol version: " + e.Detail
}

// ReturnCode returns the CONNACK return code for this rejection.
func (e *VersionError) ReturnCode() ConnackCode {
	return ConnackRefusedProtocolVersion
}

// ConnectPacket represents an MQTT CONNECT packet.
type ConnectPacket struct {
	ClientID     string
	KeepAlive    uint16
	CleanSession bool

	WillFlag    bool
	WillQoS     byte
	WillRetain  bool
	WillTopic   string
	WillMessage []byte

	UsernameFlag bool
	Username     string
	PasswordFlag bool
	Password     []byte
}

// Type returns the packet type.
func (p *ConnectPacket) Type() PacketType { return PacketCONNECT }

// Encode writes the packet to the writer.
func (p *ConnectPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	// Variable header: protocol name, level, connect flags, keep-alive
	if _, err := encodeString(&buf, ProtocolName); err != nil {
		return 0, err
	}
	buf.WriteByte(ProtocolLevel)
	buf.WriteByte(p.connectFlags())
	if _, err := encodeUint16(&buf, p.KeepAlive); err != nil {
		return 0, err
	}

	// Payload order: client id, will topic, will message, username, password
	if _, err := encodeString(&buf, p.ClientID); err != nil {
		return 0, err
	}

	if p.WillFlag {
		if _, err := encodeString(&buf, p.WillTopic); err != nil {
			return 0, err
		}
		if _, err := encodeBinary(&buf, p.WillMessage); err != nil {
			return 0, err
		}
	}

	if p.UsernameFlag {
		if _, err := encodeString(&buf, p.Username); err != nil {
			return 0, err
		}
	}

	if p.PasswordFlag {
		if _, err := encodeBinary(&buf, p.Password); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{
		PacketType:      PacketCONNECT,
		Flags:           0x00,
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	n, err := w.Write(buf.Bytes())
	return total + n, err
}

func (p *ConnectPacket) connectFlags() byte {
	var flags byte
	if p.CleanSession {
		flags |= 0x02
	}
	if p.WillFlag {
		flags |= 0x04
		flags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			flags |= 0x20
		}
	}
	if p.PasswordFlag {
		flags |= 0x40
	}
	if p.UsernameFlag {
		flags |= 0x80
	}
	return flags
}

// Decode reads the packet from the reader.
// A protocol name other than "MQTT" or a level other than 4 yields a
// *VersionError, not a generic parse error.
func (p *ConnectPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketCONNECT {
		return 0, ErrInvalidPacketType
	}

	var totalRead int

	// Protocol name
	name, n, err := decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	if name != ProtocolName {
		return totalRead, &VersionError{Detail: fmt.Sprintf("protocol name %q, must be %q", name, ProtocolName)}
	}

	// Protocol level
	var levelBuf [1]byte
	n, err = io.ReadFull(r, levelBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, truncated(err)
	}
	if levelBuf[0] != ProtocolLevel {
		return totalRead, &VersionError{Detail: fmt.Sprintf("protocol level %d, must be %d (3.1.1)", levelBuf[0], ProtocolLevel)}
	}

	// Connect flags
	var flagsBuf [1]byte
	n, err = io.ReadFull(r, flagsBuf[:])
	totalRead += n
	if err != nil {
		return totalRead, truncated(err)
	}

	flags := flagsBuf[0]
	if flags&0x01 != 0 {
		// Reserved bit must be zero
		return totalRead, ErrInvalidConnectFlags
	}

	p.CleanSession = flags&0x02 != 0
	p.WillFlag = flags&0x04 != 0
	if p.WillFlag {
		p.WillQoS = (flags & 0x18) >> 3
		p.WillRetain = flags&0x20 != 0
	} else {
		p.WillQoS = 0
		p.WillRetain = false
	}
	p.PasswordFlag = flags&0x40 != 0
	p.UsernameFlag = flags&0x80 != 0

	// Keep-alive
	keepAlive, n, err := decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.KeepAlive = keepAlive

	// Payload order: client id, will topic, will message, username, password
	p.ClientID, n, err = decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	if p.WillFlag {
		p.WillTopic, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}

		p.WillMessage, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	if p.UsernameFlag {
		p.Username, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	if p.PasswordFlag {
		p.Password, n, err = decodeBinary(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
	}

	return totalRead, p.Validate()
}

// Validate validates the packet contents.
func (p *ConnectPacket) Validate() error {
	if p.WillQoS > 2 {
		return ErrInvalidWillQoS
	}
	if !p.WillFlag && (p.WillQoS != 0 || p.WillRetain) {
		return ErrInvalidConnectFlags
	}
	if p.PasswordFlag && !p.UsernameFlag {
		return ErrPasswordWithoutLogin
	}
	return nil
}
