package protocol

import (
	"bytes"
	"encoding/binary"
)

// DatagramBuilder constructs autohost datagrams byte-by-byte. The engine is
// the only real producer of this protocol; the builder exists for tools and
// tests that need hand-built command streams.
type DatagramBuilder struct {
	buf bytes.Buffer
}

// NewDatagramBuilder creates a new DatagramBuilder.
func NewDatagramBuilder() *DatagramBuilder {
	return &DatagramBuilder{}
}

// Reset clears the builder for reuse.
func (b *DatagramBuilder) Reset() {
	b.buf.Reset()
}

// WriteByte writes a single byte.
func (b *DatagramBuilder) WriteByte(v byte) *DatagramBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteUint32 writes a uint32 in little-endian order.
func (b *DatagramBuilder) WriteUint32(v uint32) *DatagramBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteFloat32 writes a float32 in little-endian order.
func (b *DatagramBuilder) WriteFloat32(v float32) *DatagramBuilder {
	binary.Write(&b.buf, binary.LittleEndian, v)
	return b
}

// WriteString writes a bare string. The protocol has no string framing;
// trailing strings simply run to the end of the datagram.
func (b *DatagramBuilder) WriteString(s string) *DatagramBuilder {
	b.buf.WriteString(s)
	return b
}

// WriteBytes writes raw bytes.
func (b *DatagramBuilder) WriteBytes(data []byte) *DatagramBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed datagram.
func (b *DatagramBuilder) Build() []byte {
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}
