package image

import "encoding/binary"

// valueReader reads pixels and masks from a stream, either a byte at a time
// or a nibble at a time. Reading past the end of the stream returns zero and
// sets short.
type valueReader struct {
	b      []byte
	nibble bool
	low    bool // next nibble is the low half of b[0]
	short  bool
}

func newValueReader(b []byte, nibble bool) *valueReader {
	return &valueReader{
		b:      b,
		nibble: nibble,
	}
}

func (r *valueReader) readPixel() byte {
	if len(r.b) == 0 {
		r.short = true
		return 0
	}
	if !r.nibble {
		v := r.b[0]
		r.b = r.b[1:]
		return v
	}
	if !r.low {
		r.low = true
		return r.b[0] >> 4
	}
	v := r.b[0] & 0x0f
	r.b = r.b[1:]
	r.low = false
	return v
}

func (r *valueReader) readUint16() uint16 {
	if len(r.b) < 2 {
		r.short = true
		r.b = r.b[:0]
		return 0
	}
	v := binary.LittleEndian.Uint16(r.b)
	r.b = r.b[2:]
	return v
}

func (r *valueReader) readUint32() uint32 {
	if len(r.b) < 4 {
		r.short = true
		r.b = r.b[:0]
		return 0
	}
	v := binary.LittleEndian.Uint32(r.b)
	r.b = r.b[4:]
	return v
}

// resetNibbleSwitch makes the next readPixel return a high nibble. The
// current byte is not consumed, so if only its high nibble has been read
// that nibble is returned again.
func (r *valueReader) resetNibbleSwitch() {
	r.low = false
}
