package protocol

// reader is a bounds-checked cursor over one datagram. Reads never panic;
// a failed read reports false and leaves the cursor where it was.
type reader struct {
	data []byte
	off  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) readByte() (byte, bool) {
	if r.off >= len(r.data) {
		return 0, false
	}
	v := r.data[r.off]
	r.off++
	return v, true
}

// readBytes returns a copy of the next n bytes.
func (r *reader) readBytes(n int) ([]byte, bool) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, false
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b, true
}

// skip discards n bytes.
func (r *reader) skip(n int) bool {
	if r.off+n > len(r.data) {
		return false
	}
	r.off += n
	return true
}

// rest consumes and returns everything left in the datagram.
func (r *reader) rest() []byte {
	b := r.data[r.off:]
	r.off = len(r.data)
	return b
}
