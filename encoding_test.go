package mqttws

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintEncodeDecode(t *testing.T) {
	tests := []struct {
		value uint32
		wire  []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{2097151, []byte{0xff, 0xff, 0x7f}},
		{2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{maxVarint, []byte{0xff, 0xff, 0xff, 0x7f}},
	}

	for _, tt := range tests {
		var buf bytes.Buffer

		n, err := encodeVarint(&buf, tt.value)
		require.NoError(t, err)
		assert.Equal(t, len(tt.wire), n)
		assert.Equal(t, tt.wire, buf.Bytes())
		assert.Equal(t, len(tt.wire), varintSize(tt.value))

		value, n, err := decodeVarint(bytes.NewReader(tt.wire))
		require.NoError(t, err)
		assert.Equal(t, tt.value, value)
		assert.Equal(t, len(tt.wire), n)
	}
}

func TestVarintEncodeTooLarge(t *testing.T) {
	var buf bytes.Buffer

	_, err := encodeVarint(&buf, maxVarint+1)
	assert.ErrorIs(t, err, ErrVarintTooLarge)
}

func TestVarintDecodeMalformed(t *testing.T) {
	// Five continuation bytes exceed the four byte maximum.
	_, _, err := decodeVarint(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x01}))
	assert.ErrorIs(t, err, ErrVarintMalformed)
}

func TestVarintBytesIncomplete(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"single continuation byte", []byte{0x80}},
		{"three continuation bytes", []byte{0x80, 0x80, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeVarintBytes(tt.buf)
			assert.ErrorIs(t, err, ErrVarintIncomplete)
		})
	}
}

func TestVarintBytesMalformed(t *testing.T) {
	_, _, err := decodeVarintBytes([]byte{0x80, 0x80, 0x80, 0x80})
	assert.ErrorIs(t, err, ErrVarintMalformed)
}

func TestVarintBytesSurplus(t *testing.T) {
	value, n, err := decodeVarintBytes([]byte{0x80, 0x01, 0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, uint32(128), value)
	assert.Equal(t, 2, n)
}

func TestStringEncodeDecode(t *testing.T) {
	tests := []string{"", "a", "rooms/lobby", "héllo", strings.Repeat("x", 65535)}

	for _, s := range tests {
		var buf bytes.Buffer

		n, err := encodeString(&buf, s)
		require.NoError(t, err)
		assert.Equal(t, 2+len(s), n)

		decoded, n, err := decodeString(&buf)
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
		assert.Equal(t, 2+len(s), n)
	}
}

func TestStringEncodeTooLong(t *testing.T) {
	var buf bytes.Buffer

	_, err := encodeString(&buf, strings.Repeat("x", 65536))
	assert.ErrorIs(t, err, ErrStringTooLong)
}

func TestStringEncodeInvalidUTF8(t *testing.T) {
	var buf bytes.Buffer

	_, err := encodeString(&buf, string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestStringDecodeTruncated(t *testing.T) {
	// Length prefix promises 5 bytes, only 2 follow.
	_, _, err := decodeString(bytes.NewReader([]byte{0x00, 0x05, 'h', 'i'}))
	assert.ErrorIs(t, err, ErrUnexpectedTruncate)
}

func TestBinaryEncodeDecode(t *testing.T) {
	var buf bytes.Buffer

	data := []byte{0x00, 0x01, 0xff}

	n, err := encodeBinary(&buf, data)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	decoded, n, err := decodeBinary(&buf)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
	assert.Equal(t, 5, n)
}

func TestUint16EncodeDecode(t *testing.T) {
	var buf bytes.Buffer

	n, err := encodeUint16(&buf, 0xbeef)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0xbe, 0xef}, buf.Bytes())

	value, n, err := decodeUint16(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xbeef), value)
	assert.Equal(t, 2, n)
}
