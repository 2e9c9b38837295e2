package pmv

import (
	"encoding/binary"
	stdimage "image"
	"io"

	"github.com/bodgit/pmv/chunk"
)

// Info describes a movie without playing it
type Info struct {
	Header
	Width  int
	Height int
	// Poster is the first frame with an image, nil if the movie has none
	Poster *stdimage.Paletted
}

// maxPosterFrames limits how far ReadInfo looks for a poster frame
const maxPosterFrames = 16

// ReadInfo reads the header of the movie in r along with the first image
// decoded with the palette in effect at that frame
func ReadInfo(r io.Reader) (*Info, error) {
	cr := chunk.NewReader(r)

	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	info := &Info{Header: *h}
	p := h.Palette

	for i := 0; i < int(h.FrameCount) && i < maxPosterFrames; i++ {
		c, err := cr.Next()
		if err != nil || c.Tag != chunk.TagFrame {
			break
		}
		if err := checkFrameSize(c.Size); err != nil {
			return nil, err
		}

		frame := make([]byte, c.Size)
		if n, err := cr.ReadFull(frame); err != nil || n < len(frame) {
			break
		}

		if ofs := binary.LittleEndian.Uint32(frame[paletteOffset:]); ofs != 0 {
			if err := framePalette(frame, ofs, &p); err != nil {
				return nil, err
			}
		}

		ofs := binary.LittleEndian.Uint32(frame[imageOffset:])
		if ofs == 0 {
			continue
		}

		s, _, err := frameImage(frame, ofs, nil)
		if err != nil {
			return nil, err
		}

		info.Width, info.Height = s.Width, s.Height
		info.Poster = s.Paletted(&p)
		break
	}

	return info, nil
}
