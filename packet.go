package mqttws

import (
	"bytes"
	"errors"
	"io"
)

var (
	ErrPacketTooLarge    = errors.New("mqttws: packet exceeds maximum size")
	ErrUnknownPacketType = errors.New("mqttws: unknown packet type")
)

// Packet is the interface that all MQTT control packets implement.
type Packet interface {
	// Type returns the packet type.
	Type() PacketType

	// Encode writes the packet to the writer.
	// Returns the number of bytes written.
	Encode(w io.Writer) (int, error)

	// Decode reads the packet from the reader.
	// The fixed header should already be decoded.
	// Returns the number of bytes read.
	Decode(r io.Reader, header FixedHeader) (int, error)

	// Validate validates the packet contents.
	Validate() error
}

// newPacketForType creates an empty packet struct for the wire type.
// Returns ErrUnknownPacketType for reserved type codes 0 and 15.
func newPacketForType(t PacketType) (Packet, error) {
	switch t {
	case PacketCONNECT:
		return &ConnectPacket{}, nil
	case PacketCONNACK:
		return &ConnackPacket{}, nil
	case PacketPUBLISH:
		return &PublishPacket{}, nil
	case PacketPUBACK:
		return &PubackPacket{}, nil
	case PacketPUBREC:
		return &PubrecPacket{}, nil
	case PacketPUBREL:
		return &PubrelPacket{}, nil
	case PacketPUBCOMP:
		return &PubcompPacket{}, nil
	case PacketSUBSCRIBE:
		return &SubscribePacket{}, nil
	case PacketSUBACK:
		return &SubackPacket{}, nil
	case PacketUNSUBSCRIBE:
		return &UnsubscribePacket{}, nil
	case PacketUNSUBACK:
		return &UnsubackPacket{}, nil
	case PacketPINGREQ:
		return &PingreqPacket{}, nil
	case PacketPINGRESP:
		return &PingrespPacket{}, nil
	case PacketDISCONNECT:
		return &DisconnectPacket{}, nil
	default:
		return nil, ErrUnknownPacketType
	}
}

// DecodePacket decodes one complete control packet from raw wire bytes,
// such as a frame produced by the Assembler.
func DecodePacket(data []byte) (Packet, error) {
	r := bytes.NewReader(data)

	var header FixedHeader
	if _, err := header.Decode(r); err != nil {
		return nil, err
	}

	if uint32(r.Len()) < header.RemainingLength {
		return nil, ErrUnexpectedTruncate
	}

	packet, err := newPacketForType(header.PacketType)
	if err != nil {
		return nil, err
	}

	if _, err := packet.Decode(r, header); err != nil {
		return nil, err
	}

	return packet, nil
}

// EncodePacket encodes a control packet to raw wire bytes.
// Given identical packet fields the output is byte-identical across calls.
func EncodePacket(packet Packet) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := packet.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadPacket reads a complete MQTT packet from a byte stream.
// If maxSize is greater than 0, packets larger than maxSize return ErrPacketTooLarge.
func ReadPacket(r io.Reader, maxSize uint32) (Packet, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, err
	}

	if maxSize > 0 && header.RemainingLength > maxSize {
		return nil, n, ErrPacketTooLarge
	}

	remaining := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		rn, err := io.ReadFull(r, remaining)
		n += rn
		if err != nil {
			return nil, n, truncated(err)
		}
	}

	packet, err := newPacketForType(header.PacketType)
	if err != nil {
		return nil, n, err
	}

	if _, err := packet.Decode(bytes.NewReader(remaining), header); err != nil {
		return nil, n, err
	}

	return packet, n, nil
}
