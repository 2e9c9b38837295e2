/*
Package image implements the PMV block image decoders and a movie image
encoder.

An image is split into 4 by 4 pixel blocks, processed left to right in bands
of four rows. Three streams drive the decoding; a command stream holding a
2-bit opcode per block, a pixel stream holding palette indices and a mask
stream selecting between those indices for each of the 16 cells of a block.
Any of the streams may be RLE compressed and the pixel and mask streams may
also be packed two values per byte.

The image header is 26 bytes, all values little-endian:

	0   uint32  size of the image data minus 4
	4   uint32  reserved
	8   uint16  width
	10  uint16  height
	12  uint16  command stream offset
	14  uint16  command stream flags
	16  uint16  pixel stream offset
	18  uint16  pixel stream flags
	20  uint16  mask stream offset
	22  uint16  mask stream flags
	24  uint16  command line size

Stream offsets are relative to the start of the header.
*/
package image

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bodgit/pmv/rle"
)

const (
	// HeaderSize is the length in bytes of an image header
	HeaderSize = 26

	// MaxWidth is the widest image that will be decoded
	MaxWidth = 4096
	// MaxHeight is the tallest image that will be decoded
	MaxHeight = 4096

	maxImageData = 1 << 26

	// maxLineSize is the command line size of a MaxWidth wide image
	maxLineSize = (MaxWidth / blockSize / opsPerWord) * 2

	blockSize  = 4
	blockCells = blockSize * blockSize
	opsPerWord = 8
)

// Stream flags
const (
	FlagRLE    = 1 << 0
	FlagNibble = 1 << 1
)

const (
	opSolid = iota
	opTwoColor
	opFourColor
	opSkip
)

var (
	// ErrUnsupported is returned when a stream uses an unknown flag
	ErrUnsupported = errors.New("image: unsupported flags")
	// ErrCorrupt is returned when a stream is too short or an offset
	// points outside the image data
	ErrCorrupt = errors.New("image: corrupt data")
	// ErrTooLarge is returned for images wider than MaxWidth or taller
	// than MaxHeight
	ErrTooLarge = errors.New("image: dimensions too large")
)

// Header describes an image and the location of its streams
type Header struct {
	Size        uint32
	Width       uint16
	Height      uint16
	CmdOffset   uint16
	CmdFlags    uint16
	PixelOffset uint16
	PixelFlags  uint16
	MaskOffset  uint16
	MaskFlags   uint16
	LineSize    uint16
}

// ParseHeader reads an image header from the start of b
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrCorrupt
	}
	return Header{
		Size:        binary.LittleEndian.Uint32(b[0:]),
		Width:       binary.LittleEndian.Uint16(b[8:]),
		Height:      binary.LittleEndian.Uint16(b[10:]),
		CmdOffset:   binary.LittleEndian.Uint16(b[12:]),
		CmdFlags:    binary.LittleEndian.Uint16(b[14:]),
		PixelOffset: binary.LittleEndian.Uint16(b[16:]),
		PixelFlags:  binary.LittleEndian.Uint16(b[18:]),
		MaskOffset:  binary.LittleEndian.Uint16(b[20:]),
		MaskFlags:   binary.LittleEndian.Uint16(b[22:]),
		LineSize:    binary.LittleEndian.Uint16(b[24:]),
	}, nil
}

// MarshalBinary encodes the header into its 26 byte form
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:], h.Size)
	binary.LittleEndian.PutUint16(b[8:], h.Width)
	binary.LittleEndian.PutUint16(b[10:], h.Height)
	binary.LittleEndian.PutUint16(b[12:], h.CmdOffset)
	binary.LittleEndian.PutUint16(b[14:], h.CmdFlags)
	binary.LittleEndian.PutUint16(b[16:], h.PixelOffset)
	binary.LittleEndian.PutUint16(b[18:], h.PixelFlags)
	binary.LittleEndian.PutUint16(b[20:], h.MaskOffset)
	binary.LittleEndian.PutUint16(b[22:], h.MaskFlags)
	binary.LittleEndian.PutUint16(b[24:], h.LineSize)
	return b, nil
}

// Len returns the length of the image data including the header
func (h Header) Len() int {
	return int(h.Size) + 4
}

func (h Header) validate() error {
	if h.CmdFlags&^FlagRLE != 0 || h.PixelFlags&^(FlagRLE|FlagNibble) != 0 || h.MaskFlags&^(FlagRLE|FlagNibble) != 0 {
		return fmt.Errorf("%w: cmd = %02X, pixel = %02X, mask = %02X", ErrUnsupported, h.CmdFlags, h.PixelFlags, h.MaskFlags)
	}
	if h.Width > MaxWidth || h.Height > MaxHeight {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, h.Width, h.Height)
	}
	if h.LineSize > maxLineSize {
		return fmt.Errorf("%w: line size %d", ErrCorrupt, h.LineSize)
	}
	return nil
}

type streams struct {
	cmd, pixel, mask []byte
}

// expand locates the three streams within src, decompressing any that are
// RLE compressed. Uncompressed streams are slices of src and may run up to
// the end of the image data. maskCells is the most bytes a single block can
// consume from the mask stream.
func (h Header) expand(src []byte, width, height, maskCells int) (*streams, error) {
	end := h.Len()
	if end > len(src) || int(h.CmdOffset) < HeaderSize || h.CmdOffset > h.PixelOffset || h.PixelOffset > h.MaskOffset || int(h.MaskOffset) > end {
		return nil, ErrCorrupt
	}

	// Expanded streams are sized by what the decoder can consume, a band
	// holds a block per opcode on its command line if that's more than
	// the width needs
	bands := (height + blockSize - 1) / blockSize
	perBand := (width + blockSize - 1) / blockSize
	if groups, last := commandLayout(int(h.LineSize), width); groups > 0 && (groups-1)*opsPerWord+last > perBand {
		perBand = (groups-1)*opsPerWord + last
	}
	blocks := bands * perBand

	stream := func(start, stop int, flags uint16, size int) ([]byte, error) {
		if flags&FlagRLE == 0 {
			return src[start:end], nil
		}
		b, err := rle.Decompress(src[start:stop], size)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return b, nil
	}

	var (
		s   streams
		err error
	)
	if s.cmd, err = stream(int(h.CmdOffset), int(h.PixelOffset), h.CmdFlags, int(h.LineSize)*bands); err != nil {
		return nil, err
	}
	if s.pixel, err = stream(int(h.PixelOffset), int(h.MaskOffset), h.PixelFlags, blocks*4); err != nil {
		return nil, err
	}
	if s.mask, err = stream(int(h.MaskOffset), end, h.MaskFlags, blocks*maskCells); err != nil {
		return nil, err
	}
	return &s, nil
}

// commandLayout returns the number of 16-bit opcode groups in a command line
// and how many opcodes the final group carries
func commandLayout(lineSize, width int) (int, int) {
	groups := (lineSize + 1) >> 1
	last := ((width + blockSize - 1) >> 2) & (opsPerWord - 1)
	if last == 0 {
		last = opsPerWord
	}
	return groups, last
}

// commandLine copies the next line of commands into bits. bits is lineSize
// rounded up to an even length so an odd sized line still yields a final
// 16-bit group
func commandLine(cmd []byte, off, lineSize int, bits []byte) error {
	if off+lineSize > len(cmd) {
		return ErrCorrupt
	}
	n := copy(bits, cmd[off:off+lineSize])
	for i := n; i < len(bits); i++ {
		bits[i] = 0
	}
	return nil
}
