package mqttws

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnackCodeString(t *testing.T) {
	assert.Equal(t, "connection accepted", ConnackAccepted.String())
	assert.Equal(t, "unacceptable protocol version", ConnackRefusedProtocolVersion.String())
	assert.Equal(t, "not authorized", ConnackNotAuthorized.String())
}

func TestConnackPacketEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		packet ConnackPacket
		wire   []byte
	}{
		{
			name:   "accepted",
			packet: ConnackPacket{ReturnCode: ConnackAccepted},
			wire:   []byte{0x20, 0x02, 0x00, 0x00},
		},
		{
			name:   "accepted with session present",
			packet: ConnackPacket{SessionPresent: true, ReturnCode: ConnackAccepted},
			wire:   []byte{0x20, 0x02, 0x01, 0x00},
		},
		{
			name:   "identifier rejected",
			packet: ConnackPacket{ReturnCode: ConnackRefusedIdentifier},
			wire:   []byte{0x20, 0x02, 0x00, 0x02},
		},
		{
			name:   "not authorized",
			packet: ConnackPacket{ReturnCode: ConnackNotAuthorized},
			wire:   []byte{0x20, 0x02, 0x00, 0x05},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			n, err := tt.packet.Encode(&buf)
			require.NoError(t, err)
			assert.Equal(t, len(tt.wire), n)
			assert.Equal(t, tt.wire, buf.Bytes())

			var header FixedHeader
			_, err = header.Decode(&buf)
			require.NoError(t, err)

			var decoded ConnackPacket
			_, err = decoded.Decode(&buf, header)
			require.NoError(t, err)
			assert.Equal(t, tt.packet, decoded)
		})
	}
}

func TestConnackPacketValidate(t *testing.T) {
	p := ConnackPacket{ReturnCode: ConnackCode(6)}
	assert.ErrorIs(t, p.Validate(), ErrInvalidConnackCode)
}
