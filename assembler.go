package mqttws

// Assembler reassembles complete control packets from a stream of transport
// fragments. Fragments may split a packet at any byte boundary, including
// inside the remaining-length varint, and a single fragment may carry several
// concatenated packets.
//
// An Assembler is owned by exactly one connection task and is not safe for
// concurrent use.
type Assembler struct {
	buf []byte

	// Derived lazily once enough bytes are buffered. totalLength == 0 means
	// the current packet's length is not yet known.
	totalLength  int
	headerOffset int
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Feed appends a transport fragment and returns every complete packet that
// became available, in arrival order. An empty result means "no packet yet",
// not an error. The only error condition is a malformed remaining length.
//
// Returned slices are copies; the caller may retain them.
func (a *Assembler) Feed(fragment []byte) ([][]byte, error) {
	a.buf = append(a.buf, fragment...)

	var packets [][]byte
	for {
		packet, err := a.next()
		if err != nil {
			return packets, err
		}
		if packet == nil {
			return packets, nil
		}
		packets = append(packets, packet)
	}
}

// Buffered returns the number of bytes waiting for packet completion.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// Reset discards all buffered state.
func (a *Assembler) Reset() {
	a.buf = nil
	a.totalLength = 0
	a.headerOffset = 0
}

// next slices one complete packet off the front of the buffer, or returns
// nil when more bytes are needed.
func (a *Assembler) next() ([]byte, error) {
	if len(a.buf) < 2 {
		return nil, nil
	}

	if a.totalLength == 0 {
		remaining, n, err := decodeVarintBytes(a.buf[1:])
		if err == ErrVarintIncomplete {
			// The varint's terminating byte has not arrived yet.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		a.headerOffset = 1 + n
		a.totalLength = a.headerOffset + int(remaining)
	}

	if len(a.buf) < a.totalLength {
		return nil, nil
	}

	packet := make([]byte, a.totalLength)
	copy(packet, a.buf[:a.totalLength])

	// Surplus bytes are the start of the next packet.
	rest := a.buf[a.totalLength:]
	if len(rest) == 0 {
		a.buf = a.buf[:0]
	} else {
		a.buf = append(a.buf[:0], rest...)
	}
	a.totalLength = 0
	a.headerOffset = 0

	return packet, nil
}
