package image

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"github.com/bodgit/pmv/palette"
)

// DecodeImage decodes a standalone image into s. src starts with the image
// header described by h. On a delta frame any block using the skip opcode
// and any decoded cell of value zero leaves the existing pixel untouched.
//
// The flags are checked before anything is written to s.
func DecodeImage(src []byte, h Header, s *Surface, delta bool) error {
	if err := h.validate(); err != nil {
		return err
	}
	if err := s.check(); err != nil {
		return err
	}

	// A literal block reads 16 whole bytes from the mask stream
	st, err := h.expand(src, s.Width, s.Height, blockCells)
	if err != nil {
		return err
	}

	lineSize := int(h.LineSize)
	groups, lastCount := commandLayout(lineSize, s.Width)

	// The band is wide enough for every opcode on a command line, any
	// blocks past the right hand edge are decoded but never committed
	blocks := (s.Width + blockSize - 1) / blockSize
	if n := (groups-1)*opsPerWord + lastCount; groups > 0 && n > blocks {
		blocks = n
	}
	stride := blocks * blockSize

	var offsets [blockCells]int
	for i := range offsets {
		offsets[i] = (i/blockSize)*stride + i%blockSize
	}

	line := make([]byte, stride*blockSize)
	bits := make([]byte, groups*2)

	pixelReader := newValueReader(st.pixel, h.PixelFlags&FlagNibble != 0)
	maskReader := newValueReader(st.mask, h.MaskFlags&FlagNibble != 0)

	cmdOfs := 0
	for y := 0; y < s.Height; y += blockSize {
		for i := range line {
			line[i] = 0
		}

		if err := commandLine(st.cmd, cmdOfs, lineSize, bits); err != nil {
			return err
		}
		cmdOfs += lineSize

		dest := 0
		for g := 0; g < groups; g++ {
			ops := binary.LittleEndian.Uint16(bits[g*2:])

			count := opsPerWord
			if g == groups-1 {
				count = lastCount
			}

			for c := 0; c < count; c++ {
				op := ops & 3
				ops >>= 2

				var pixels [4]byte

				switch op {
				case opSolid:
					pixels[0] = pixelReader.readPixel()
					for _, o := range offsets {
						line[dest+o] = pixels[0]
					}
				case opTwoColor:
					pixels[0] = pixelReader.readPixel()
					pixels[1] = pixelReader.readPixel()
					mask := maskReader.readUint16()
					for _, o := range offsets {
						line[dest+o] = pixels[mask&1]
						mask >>= 1
					}
				case opFourColor:
					for i := range pixels {
						pixels[i] = pixelReader.readPixel()
					}
					mask := maskReader.readUint32()
					for _, o := range offsets {
						line[dest+o] = pixels[mask&3]
						mask >>= 2
					}
				case opSkip:
					if !delta {
						// Literal pixels start with a high nibble
						// and come from the mask stream
						maskReader.resetNibbleSwitch()
						for _, o := range offsets {
							line[dest+o] = maskReader.readPixel()
						}
					}
				}

				dest += blockSize
			}
		}

		if pixelReader.short || maskReader.short {
			return fmt.Errorf("%w: streams exhausted at row %d", ErrCorrupt, y)
		}

		for r := 0; r < blockSize && y+r < s.Height; r++ {
			row := s.Row(y + r)
			band := line[r*stride : r*stride+s.Width]
			if !delta {
				copy(row, band)
				continue
			}
			for x, v := range band {
				if v != 0 {
					row[x] = v
				}
			}
		}
	}

	return nil
}

// Decode reads a standalone image from r and returns it as an
// image.Paletted using p
func Decode(r io.Reader, p *palette.Palette) (*image.Paletted, error) {
	src, h, err := readImage(r)
	if err != nil {
		return nil, err
	}
	s := NewSurface(int(h.Width), int(h.Height))
	if err := DecodeImage(src, h, s, false); err != nil {
		return nil, err
	}
	return s.Paletted(p), nil
}

// DecodeConfig returns the color model and dimensions of a standalone image
// without decoding it
func DecodeConfig(r io.Reader, p *palette.Palette) (image.Config, error) {
	var b [HeaderSize]byte
	if err := readFull(r, b[:]); err != nil {
		return image.Config{}, err
	}
	h, err := ParseHeader(b[:])
	if err != nil {
		return image.Config{}, err
	}
	if err := h.validate(); err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: p.Colors(),
		Width:      int(h.Width),
		Height:     int(h.Height),
	}, nil
}

func readFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func readImage(r io.Reader) ([]byte, Header, error) {
	hdr := make([]byte, HeaderSize)
	if err := readFull(r, hdr); err != nil {
		return nil, Header{}, err
	}
	h, err := ParseHeader(hdr)
	if err != nil {
		return nil, Header{}, err
	}
	if err := h.validate(); err != nil {
		return nil, Header{}, err
	}
	if h.Len() < HeaderSize || h.Len() > maxImageData {
		return nil, Header{}, ErrCorrupt
	}
	src := make([]byte, h.Len())
	copy(src, hdr)
	if err := readFull(r, src[HeaderSize:]); err != nil {
		return nil, Header{}, err
	}
	return src, h, nil
}
