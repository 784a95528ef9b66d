package mqttws

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsubscribePacketEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		packet UnsubscribePacket
	}{
		{
			name:   "single topic",
			packet: UnsubscribePacket{PacketID: 2, TopicFilters: []string{"rooms/lobby"}},
		},
		{
			name:   "multiple topics",
			packet: UnsubscribePacket{PacketID: 9, TopicFilters: []string{"a", "b/c", "d"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			n, err := tt.packet.Encode(&buf)
			require.NoError(t, err)
			assert.Equal(t, buf.Len(), n)

			var header FixedHeader
			_, err = header.Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, PacketUNSUBSCRIBE, header.PacketType)
			assert.Equal(t, byte(0x02), header.Flags)

			var decoded UnsubscribePacket
			_, err = decoded.Decode(&buf, header)
			require.NoError(t, err)
			assert.Equal(t, tt.packet, decoded)
		})
	}
}

func TestUnsubscribePacketNoTopics(t *testing.T) {
	p := UnsubscribePacket{PacketID: 1}
	assert.ErrorIs(t, p.Validate(), ErrProtocolViolation)
}

func TestUnsubackPacketEncodeDecode(t *testing.T) {
	p := UnsubackPacket{PacketID: 11}

	var buf bytes.Buffer

	n, err := p.Encode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	var header FixedHeader
	_, err = header.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, PacketUNSUBACK, header.PacketType)

	var decoded UnsubackPacket
	_, err = decoded.Decode(&buf, header)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}
