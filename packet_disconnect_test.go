package mqttws

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectEncodeDecode(t *testing.T) {
	var buf bytes.Buffer

	p := &DisconnectPacket{}

	n, err := p.Encode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0xe0, 0x00}, buf.Bytes())

	var header FixedHeader
	_, err = header.Decode(&buf)
	require.NoError(t, err)

	var decoded DisconnectPacket
	_, err = decoded.Decode(&buf, header)
	require.NoError(t, err)
}

func TestDisconnectDecodeNonEmptyBody(t *testing.T) {
	header := FixedHeader{PacketType: PacketDISCONNECT, RemainingLength: 2}

	var decoded DisconnectPacket
	_, err := decoded.Decode(bytes.NewReader([]byte{0x00, 0x00}), header)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}
