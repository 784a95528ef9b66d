package mqttws

import (
	"bytes"
	"errors"
	"io"
)

// SubackFailure is the SUBACK return code reporting a rejected subscription,
// distinct from the granted QoS values 0-2.
const SubackFailure byte = 0x80

var ErrInvalidSubackCode = errors.New("invalid SUBACK return code")

// SubackPacket represents an MQTT SUBACK packet.
// ReturnCodes holds one granted QoS or SubackFailure per requested topic,
// in the order the topics appeared in the SUBSCRIBE.
type SubackPacket struct {
	PacketID    uint16
	ReturnCodes []byte
}

// Type returns the packet type.
func (p *SubackPacket) Type() PacketType { return PacketSUBACK }

// GetPacketID returns the packet identifier.
func (p *SubackPacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *SubackPacket) SetPacketID(id uint16) { p.PacketID = id }

// Encode writes the packet to the writer.
// Any return code above QoS 2 that is not already SubackFailure is encoded
// as SubackFailure.
func (p *SubackPacket) Encode(w io.Writer) (int, error) {
	codes := make([]byte, len(p.ReturnCodes))
	for i, code := range p.ReturnCodes {
		if code > 2 {
			code = SubackFailure
		}
		codes[i] = code
	}

	normalized := SubackPacket{PacketID: p.PacketID, ReturnCodes: codes}
	if err := normalized.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}

	for _, code := range codes {
		if err := buf.WriteByte(code); err != nil {
			return 0, err
		}
	}

	header := FixedHeader{
		PacketType:      PacketSUBACK,
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

// Decode reads the packet from the reader.
func (p *SubackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketSUBACK {
		return 0, ErrInvalidPacketType
	}

	var totalRead int

	id, n, err := decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.PacketID = id

	p.ReturnCodes = nil
	for totalRead < int(header.RemainingLength) {
		var codeBuf [1]byte
		n, err = io.ReadFull(r, codeBuf[:])
		totalRead += n
		if err != nil {
			return totalRead, truncated(err)
		}
		p.ReturnCodes = append(p.ReturnCodes, codeBuf[0])
	}

	return totalRead, p.Validate()
}

// Validate validates the packet contents.
func (p *SubackPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrInvalidPacketID
	}
	if len(p.ReturnCodes) == 0 {
		return ErrProtocolViolation
	}
	for _, code := range p.ReturnCodes {
		if code > 2 && code != SubackFailure {
			return ErrInvalidSubackCode
		}
	}
	return nil
}
