package pmv

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bodgit/pmv/chunk"
	"github.com/bodgit/pmv/palette"
)

const headerSize = 826

// Header holds the movie metadata from the MHED chunk
type Header struct {
	FrameDelay uint16
	FrameCount uint16
	SoundFreq  uint16
	Unknown    [22]uint16
	Palette    palette.Palette
}

type rawHeader struct {
	FrameDelay uint16
	_          [4]byte
	FrameCount uint16
	_          [4]byte
	SoundFreq  uint16
	Unknown    [22]uint16
	Palette    palette.Palette
}

// Rate returns the sample rate to play the audio at. Two odd frequencies
// found in some movies sound choppy unless replaced by their common
// equivalents.
func (h *Header) Rate() int {
	switch h.SoundFreq {
	case 11127:
		return 11025
	case 22254:
		return 22050
	}
	return int(h.SoundFreq)
}

// Duration returns the running time of the movie in milliseconds
func (h *Header) Duration() int {
	return int(h.FrameDelay) * int(h.FrameCount)
}

func expect(r *chunk.Reader, tag chunk.Tag) (chunk.Header, error) {
	h, err := r.Next()
	if err != nil {
		return h, err
	}
	if h.Tag != tag {
		return h, fmt.Errorf("%w: expected '%s', got '%s'", ErrBadHeader, tag, h.Tag)
	}
	return h, nil
}

// readHeader consumes the MOVE and MHED chunks, leaving r positioned at the
// first frame
func readHeader(r *chunk.Reader) (*Header, error) {
	if _, err := expect(r, chunk.TagMovie); err != nil {
		return nil, err
	}

	c, err := expect(r, chunk.TagHeader)
	if err != nil {
		return nil, err
	}

	var raw rawHeader
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if c.Size > headerSize {
		if err := r.Skip(int64(c.Size - headerSize)); err != nil {
			return nil, err
		}
	}

	return &Header{
		FrameDelay: raw.FrameDelay,
		FrameCount: raw.FrameCount,
		SoundFreq:  raw.SoundFreq,
		Unknown:    raw.Unknown,
		Palette:    raw.Palette,
	}, nil
}

func (h *Header) marshal() []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(b[0:], h.FrameDelay)
	binary.LittleEndian.PutUint16(b[6:], h.FrameCount)
	binary.LittleEndian.PutUint16(b[12:], h.SoundFreq)
	for i, v := range h.Unknown {
		binary.LittleEndian.PutUint16(b[14+i*2:], v)
	}
	copy(b[headerSize-palette.Size:], h.Palette[:])
	return b
}
