package mqttws

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketTypeString(t *testing.T) {
	assert.Equal(t, "CONNECT", PacketCONNECT.String())
	assert.Equal(t, "PUBLISH", PacketPUBLISH.String())
	assert.Equal(t, "DISCONNECT", PacketDISCONNECT.String())
}

func TestPacketTypeValid(t *testing.T) {
	assert.False(t, PacketType(0).Valid())
	assert.True(t, PacketCONNECT.Valid())
	assert.True(t, PacketDISCONNECT.Valid())
	assert.False(t, PacketType(15).Valid())
}

func TestFixedHeaderEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		header FixedHeader
		wire   []byte
	}{
		{
			name:   "connect empty body",
			header: FixedHeader{PacketType: PacketCONNECT, RemainingLength: 0},
			wire:   []byte{0x10, 0x00},
		},
		{
			name:   "publish with flags",
			header: FixedHeader{PacketType: PacketPUBLISH, Flags: 0x0b, RemainingLength: 10},
			wire:   []byte{0x3b, 0x0a},
		},
		{
			name:   "subscribe reserved flags",
			header: FixedHeader{PacketType: PacketSUBSCRIBE, Flags: 0x02, RemainingLength: 200},
			wire:   []byte{0x82, 0xc8, 0x01},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			n, err := tt.header.Encode(&buf)
			require.NoError(t, err)
			assert.Equal(t, len(tt.wire), n)
			assert.Equal(t, tt.wire, buf.Bytes())
			assert.Equal(t, len(tt.wire), tt.header.Size())

			var decoded FixedHeader

			n, err = decoded.Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.header, decoded)
			assert.Equal(t, len(tt.wire), n)
		})
	}
}

func TestFixedHeaderDecodeInvalidType(t *testing.T) {
	var header FixedHeader

	_, err := header.Decode(bytes.NewReader([]byte{0x00, 0x00}))
	assert.ErrorIs(t, err, ErrInvalidPacketType)

	_, err = header.Decode(bytes.NewReader([]byte{0xf0, 0x00}))
	assert.ErrorIs(t, err, ErrInvalidPacketType)
}

func TestFixedHeaderValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		header  FixedHeader
		wantErr bool
	}{
		{"connect zero flags", FixedHeader{PacketType: PacketCONNECT}, false},
		{"connect nonzero flags", FixedHeader{PacketType: PacketCONNECT, Flags: 0x01}, true},
		{"publish qos 2 retain", FixedHeader{PacketType: PacketPUBLISH, Flags: 0x0d}, false},
		{"publish qos 3", FixedHeader{PacketType: PacketPUBLISH, Flags: 0x06}, true},
		{"subscribe reserved", FixedHeader{PacketType: PacketSUBSCRIBE, Flags: 0x02}, false},
		{"subscribe zero flags", FixedHeader{PacketType: PacketSUBSCRIBE}, true},
		{"pubrel reserved", FixedHeader{PacketType: PacketPUBREL, Flags: 0x02}, false},
		{"pubrel zero flags", FixedHeader{PacketType: PacketPUBREL}, true},
		{"pingreq nonzero flags", FixedHeader{PacketType: PacketPINGREQ, Flags: 0x0f}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.header.ValidateFlags()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPacketFlags)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
