package pmv

import (
	"encoding/binary"
	"fmt"

	"github.com/bodgit/pmv/image"
	"github.com/bodgit/pmv/palette"
)

const (
	frameHeaderSize = 20
	maxFrameSize    = 16 << (10 * 2)

	// maxAudioSize limits the PCM a single frame can decompress to, a
	// second of 8-bit audio at 44.1kHz is well under it
	maxAudioSize = 1 << 20

	audioOffset   = 8
	imageOffset   = 12
	paletteOffset = 16

	// Sub-chunk offsets count from 8 bytes before the frame payload
	subChunkBias = 8
)

func checkFrameSize(size uint32) error {
	if size < frameHeaderSize || size > maxFrameSize {
		return fmt.Errorf("%w: frame size %d", ErrCorrupt, size)
	}
	return nil
}

// subChunk returns the data from ofs to the end of the frame, which must be
// at least n bytes
func subChunk(frame []byte, ofs uint32, n int) ([]byte, error) {
	if ofs < subChunkBias || int64(ofs)-subChunkBias+int64(n) > int64(len(frame)) {
		return nil, fmt.Errorf("%w: offset %d", ErrCorrupt, ofs)
	}
	return frame[ofs-subChunkBias:], nil
}

// frameAudio returns the compressed audio at ofs along with the chunk size
// and count of the PCM it decompresses to
func frameAudio(frame []byte, ofs uint32) ([]byte, int, int, error) {
	b, err := subChunk(frame, ofs, 8)
	if err != nil {
		return nil, 0, 0, err
	}

	chunkSize := int(binary.LittleEndian.Uint16(b[4:]))
	chunkCount := int(binary.LittleEndian.Uint16(b[6:]))
	if chunkSize*chunkCount > maxAudioSize {
		return nil, 0, 0, fmt.Errorf("%w: audio size %d", ErrCorrupt, chunkSize*chunkCount)
	}

	return b[8:], chunkSize, chunkCount, nil
}

// framePalette applies the palette delta at ofs to p
func framePalette(frame []byte, ofs uint32, p *palette.Palette) error {
	b, err := subChunk(frame, ofs, 8)
	if err != nil {
		return err
	}

	size := binary.LittleEndian.Uint32(b[4:])
	if int64(size) > int64(len(b)-8) {
		return fmt.Errorf("%w: palette size %d", ErrCorrupt, size)
	}

	return p.Patch(b[8 : 8+size])
}

// frameImage decodes the image at ofs onto s, creating s from the image
// dimensions if it is nil
func frameImage(frame []byte, ofs uint32, s *image.Surface) (*image.Surface, image.Header, error) {
	b, err := subChunk(frame, ofs, image.HeaderSize)
	if err != nil {
		return s, image.Header{}, err
	}

	h, err := image.ParseHeader(b)
	if err != nil {
		return s, h, err
	}

	if s == nil {
		if h.Width > image.MaxWidth || h.Height > image.MaxHeight {
			return s, h, fmt.Errorf("%w: %dx%d", image.ErrTooLarge, h.Width, h.Height)
		}
		s = image.NewSurface(int(h.Width), int(h.Height))
	}

	return s, h, image.DecodeMovieImage(b, h, s)
}
