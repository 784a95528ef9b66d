package mqttws

import (
	"bytes"
	"errors"
	"io"
)

var (
	ErrInvalidQoS       = errors.New("invalid QoS level")
	ErrMissingPacketID  = errors.New("packet identifier required for QoS > 0")
	ErrInvalidTopicName = errors.New("invalid topic name")
)

// PublishPacket represents an MQTT PUBLISH packet.
//
// QoS, Dup and Retain live in the fixed-header flags, so Decode needs the
// already parsed header in addition to the variable header bytes.
type PublishPacket struct {
	Topic    string
	PacketID uint16 // present on the wire only when QoS > 0
	Payload  []byte
	QoS      byte
	Dup      bool
	Retain   bool
}

// Type returns the packet type.
func (p *PublishPacket) Type() PacketType { return PacketPUBLISH }

// GetPacketID returns the packet identifier.
func (p *PublishPacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *PublishPacket) SetPacketID(id uint16) { p.PacketID = id }

// Flags returns the fixed-header flags for this packet.
func (p *PublishPacket) Flags() byte {
	flags := (p.QoS & 0x03) << 1
	if p.Dup {
		flags |= 0x08
	}
	if p.Retain {
		flags |= 0x01
	}
	return flags
}

// Encode writes the packet to the writer.
func (p *PublishPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	// Variable header: topic name, then packet id for QoS > 0
	if _, err := encodeString(&buf, p.Topic); err != nil {
		return 0, err
	}

	if p.QoS > 0 {
		if _, err := encodeUint16(&buf, p.PacketID); err != nil {
			return 0, err
		}
	}

	// Payload is opaque bytes, no length prefix
	buf.Write(p.Payload)

	header := FixedHeader{
		PacketType:      PacketPUBLISH,
		Flags:           p.Flags(),
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet from the reader.
func (p *PublishPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketPUBLISH {
		return 0, ErrInvalidPacketType
	}
	if err := header.ValidateFlags(); err != nil {
		return 0, err
	}

	p.QoS = (header.Flags >> 1) & 0x03
	p.Dup = header.Flags&0x08 != 0
	p.Retain = header.Flags&0x01 != 0

	var totalRead int

	topic, n, err := decodeString(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.Topic = topic

	if p.QoS > 0 {
		id, n, err := decodeUint16(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		p.PacketID = id
	}

	// Remainder of the packet is the payload
	if rem := int(header.RemainingLength) - totalRead; rem > 0 {
		p.Payload = make([]byte, rem)
		n, err := io.ReadFull(r, p.Payload)
		totalRead += n
		if err != nil {
			return totalRead, truncated(err)
		}
	} else {
		p.Payload = nil
	}

	return totalRead, p.Validate()
}

// Validate validates the packet contents.
func (p *PublishPacket) Validate() error {
	if p.QoS > 2 {
		return ErrInvalidQoS
	}
	if p.QoS > 0 && p.PacketID == 0 {
		return ErrMissingPacketID
	}
	if p.Topic == "" {
		return ErrInvalidTopicName
	}
	return nil
}
