package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/bodgit/pmv/palette"
	"github.com/bodgit/pmv/rle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ops packs opcodes into a command line of 16-bit groups
func ops(codes ...int) []byte {
	b := make([]byte, (len(codes)+opsPerWord-1)/opsPerWord*2)
	for n, c := range codes {
		b[n/opsPerWord*2+(n%opsPerWord)/4] |= byte(c) << ((n % 4) * 2)
	}
	return b
}

type streamFlags struct {
	cmd, pixel, mask uint16
}

func build(width, height, lineSize int, cmd, pixel, mask []byte, flags streamFlags) ([]byte, Header) {
	h := Header{
		Width:       uint16(width),
		Height:      uint16(height),
		LineSize:    uint16(lineSize),
		CmdOffset:   HeaderSize,
		CmdFlags:    flags.cmd,
		PixelOffset: uint16(HeaderSize + len(cmd)),
		PixelFlags:  flags.pixel,
		MaskOffset:  uint16(HeaderSize + len(cmd) + len(pixel)),
		MaskFlags:   flags.mask,
	}
	var data []byte
	data = append(data, cmd...)
	data = append(data, pixel...)
	data = append(data, mask...)
	h.Size = uint32(HeaderSize + len(data) - 4)

	b, _ := h.MarshalBinary()
	return append(b, data...), h
}

func filled(width, height int, v byte) *Surface {
	s := NewSurface(width, height)
	for i := range s.Pix {
		s.Pix[i] = v
	}
	return s
}

func grey() *palette.Palette {
	p := new(palette.Palette)
	for i := 0; i < palette.Entries; i++ {
		p[i*3], p[i*3+1], p[i*3+2] = byte(i), byte(i), byte(i)
	}
	return p
}

// Every cell picks color i%4 so each row reads 0, 1, 2, 3
const columnMask = 0xe4e4e4e4

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Size:        100,
		Width:       320,
		Height:      200,
		CmdOffset:   26,
		CmdFlags:    1,
		PixelOffset: 40,
		PixelFlags:  3,
		MaskOffset:  60,
		MaskFlags:   2,
		LineSize:    10,
	}
	b, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, HeaderSize)

	got, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, 104, got.Len())

	_, err = ParseHeader(b[:HeaderSize-1])
	assert.Equal(t, ErrCorrupt, err)
}

func TestDecodeImageOpcodes(t *testing.T) {
	tables := []struct {
		name  string
		cmd   []byte
		pixel []byte
		mask  []byte
		want  [4][4]byte
	}{
		{
			name:  "solid",
			cmd:   ops(0),
			pixel: []byte{7},
			want:  [4][4]byte{{7, 7, 7, 7}, {7, 7, 7, 7}, {7, 7, 7, 7}, {7, 7, 7, 7}},
		},
		{
			name:  "two color",
			cmd:   ops(1),
			pixel: []byte{1, 2},
			mask:  []byte{0xff, 0x00},
			want:  [4][4]byte{{2, 2, 2, 2}, {2, 2, 2, 2}, {1, 1, 1, 1}, {1, 1, 1, 1}},
		},
		{
			name:  "four color",
			cmd:   ops(2),
			pixel: []byte{1, 2, 3, 4},
			mask:  le32(columnMask),
			want:  [4][4]byte{{1, 2, 3, 4}, {1, 2, 3, 4}, {1, 2, 3, 4}, {1, 2, 3, 4}},
		},
		{
			name: "literal from mask stream",
			cmd:  ops(3),
			mask: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
			want: [4][4]byte{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9, 10, 11}, {12, 13, 14, 15}},
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			src, h := build(4, 4, 2, table.cmd, table.pixel, table.mask, streamFlags{})
			s := filled(4, 4, 0xee)
			require.NoError(t, DecodeImage(src, h, s, false))
			for y := 0; y < 4; y++ {
				assert.Equal(t, table.want[y][:], s.Row(y), "row %d", y)
			}
		})
	}
}

func TestDecodeImageNibbles(t *testing.T) {
	src, h := build(8, 4, 2, ops(0, 3), []byte{0x12}, []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}, streamFlags{pixel: FlagNibble, mask: FlagNibble})
	s := NewSurface(8, 4)
	require.NoError(t, DecodeImage(src, h, s, false))

	assert.Equal(t, []byte{1, 1, 1, 1, 0, 1, 2, 3}, s.Row(0))
	assert.Equal(t, []byte{1, 1, 1, 1, 12, 13, 14, 15}, s.Row(3))
}

func TestDecodeImageDeltaTransparency(t *testing.T) {
	src, h := build(8, 4, 2, ops(2, 3), []byte{0, 5, 0, 5}, le32(columnMask), streamFlags{})
	s := filled(8, 4, 9)
	require.NoError(t, DecodeImage(src, h, s, true))

	for y := 0; y < 4; y++ {
		assert.Equal(t, []byte{9, 5, 9, 5, 9, 9, 9, 9}, s.Row(y))
	}

	// The same data as a keyframe overwrites everything, and opcode 3 reads
	// literals which run out here
	s = filled(8, 4, 9)
	err := DecodeImage(src, h, s, false)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestDecodeImageKeyframeOverwrites(t *testing.T) {
	src, h := build(4, 4, 2, ops(2), []byte{0, 5, 0, 5}, le32(columnMask), streamFlags{})
	s := filled(4, 4, 9)
	require.NoError(t, DecodeImage(src, h, s, false))
	for y := 0; y < 4; y++ {
		assert.Equal(t, []byte{0, 5, 0, 5}, s.Row(y))
	}
}

func TestDecodeImageUnevenSize(t *testing.T) {
	cmd := append(ops(0, 0), ops(0, 0)...)
	src, h := build(6, 6, 2, cmd, []byte{1, 2, 3, 4}, nil, streamFlags{})
	s := NewSurface(6, 6)
	require.NoError(t, DecodeImage(src, h, s, false))

	for y := 0; y < 4; y++ {
		assert.Equal(t, []byte{1, 1, 1, 1, 2, 2}, s.Row(y))
	}
	for y := 4; y < 6; y++ {
		assert.Equal(t, []byte{3, 3, 3, 3, 4, 4}, s.Row(y))
	}
}

func TestDecodeImageAlignedBand(t *testing.T) {
	// A 6 pixel wide image still decodes two whole blocks per band, the
	// last two columns of the second block are dropped
	literal := make([]byte, blockCells)
	for i := range literal {
		literal[i] = byte(20 + i)
	}
	src, h := build(6, 4, 2, ops(2, 3), []byte{1, 2, 3, 4}, append(le32(columnMask), literal...), streamFlags{})
	s := NewSurface(6, 4)
	require.NoError(t, DecodeImage(src, h, s, false))

	assert.Equal(t, []byte{1, 2, 3, 4, 20, 21}, s.Row(0))
	assert.Equal(t, []byte{1, 2, 3, 4, 24, 25}, s.Row(1))
	assert.Equal(t, []byte{1, 2, 3, 4, 28, 29}, s.Row(2))
	assert.Equal(t, []byte{1, 2, 3, 4, 32, 33}, s.Row(3))
}

func TestDecodeImageCompressed(t *testing.T) {
	cmd := append(ops(1, 0), ops(0, 2)...)
	pixel := []byte{1, 2, 3, 3, 5, 6, 7, 8}
	mask := append([]byte{0x0f, 0xf0}, le32(columnMask)...)

	src, h := build(8, 8, 2, cmd, pixel, mask, streamFlags{})
	want := NewSurface(8, 8)
	require.NoError(t, DecodeImage(src, h, want, false))

	src, h = build(8, 8, 2, rle.Compress(cmd), rle.Compress(pixel), rle.Compress(mask), streamFlags{cmd: FlagRLE, pixel: FlagRLE, mask: FlagRLE})
	got := NewSurface(8, 8)
	require.NoError(t, DecodeImage(src, h, got, false))

	assert.Equal(t, want, got)
	assert.Equal(t, []byte{2, 2, 2, 2, 3, 3, 3, 3}, got.Row(0))
	assert.Equal(t, []byte{1, 1, 1, 1, 3, 3, 3, 3}, got.Row(2))
	assert.Equal(t, []byte{3, 3, 3, 3, 5, 6, 7, 8}, got.Row(7))
}

func TestDecodeUnsupportedFlags(t *testing.T) {
	tables := []struct {
		name  string
		flags streamFlags
	}{
		{"pixel", streamFlags{pixel: 1 << 2}},
		{"mask", streamFlags{mask: 1 << 7}},
		{"mask high byte", streamFlags{mask: 1 << 8}},
		{"cmd nibble", streamFlags{cmd: FlagNibble}},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			src, h := build(4, 4, 2, ops(0), []byte{7}, nil, table.flags)

			s := filled(4, 4, 0xee)
			err := DecodeImage(src, h, s, false)
			assert.True(t, errors.Is(err, ErrUnsupported))
			assert.Equal(t, filled(4, 4, 0xee), s)

			err = DecodeMovieImage(src, h, s)
			assert.True(t, errors.Is(err, ErrUnsupported))
			assert.Equal(t, filled(4, 4, 0xee), s)
		})
	}
}

func TestDecodeBadOffsets(t *testing.T) {
	src, h := build(4, 4, 2, ops(0), []byte{7}, nil, streamFlags{})

	bad := h
	bad.Size += 10
	assert.Equal(t, ErrCorrupt, DecodeImage(src, bad, NewSurface(4, 4), false))

	bad = h
	bad.PixelOffset, bad.MaskOffset = h.MaskOffset, h.PixelOffset
	assert.Equal(t, ErrCorrupt, DecodeMovieImage(src, bad, NewSurface(4, 4)))

	bad = h
	bad.LineSize = 4
	assert.Equal(t, ErrCorrupt, DecodeMovieImage(src[:h.Len()], bad, NewSurface(4, 4)))
}

func TestDecodeExpandLimits(t *testing.T) {
	tables := []struct {
		name  string
		width int
		cmd   []byte
		pixel []byte
		flags streamFlags
	}{
		{
			// One band only ever reads a single command line
			name:  "command",
			width: 8,
			cmd:   rle.Compress(make([]byte, 8)),
			pixel: []byte{1, 2},
			flags: streamFlags{cmd: FlagRLE},
		},
		{
			name:  "pixel",
			width: 4,
			cmd:   ops(0),
			pixel: rle.Compress(make([]byte, 5)),
			flags: streamFlags{pixel: FlagRLE},
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			src, h := build(table.width, 4, 2, table.cmd, table.pixel, nil, table.flags)
			err := DecodeImage(src, h, NewSurface(table.width, 4), false)
			assert.True(t, errors.Is(err, ErrCorrupt))
		})
	}

	src, h := build(4, 4, maxLineSize+2, make([]byte, maxLineSize+2), []byte{7}, nil, streamFlags{})
	err := DecodeMovieImage(src, h, NewSurface(4, 4))
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestDecodeTooLarge(t *testing.T) {
	src, h := build(4, 4, 2, ops(0), []byte{7}, nil, streamFlags{})
	h.Width = MaxWidth + 1
	assert.True(t, errors.Is(DecodeImage(src, h, NewSurface(4, 4), false), ErrTooLarge))
}

func TestDecodeMovieImage(t *testing.T) {
	cmd := append(ops(0, 2), ops(1, 3)...)
	pixel := []byte{1, 2, 3, 4, 5, 5, 6}
	mask := append(le32(columnMask), 0x00, 0xff)

	src, h := build(6, 6, 2, cmd, pixel, mask, streamFlags{})

	s := &Surface{Width: 6, Height: 6, Pitch: 8, Pix: bytes.Repeat([]byte{0xee}, 8*6)}
	require.NoError(t, DecodeMovieImage(src, h, s))

	for y := 0; y < 4; y++ {
		assert.Equal(t, []byte{1, 1, 1, 1, 2, 3}, s.Row(y))
	}
	// The first eight mask bits are clear so rows 4 and 5 pick color 5,
	// the skipped block keeps its old contents
	for y := 4; y < 6; y++ {
		assert.Equal(t, []byte{5, 5, 5, 5, 0xee, 0xee}, s.Row(y))
	}
	// Padding beyond the width is never touched
	for y := 0; y < 6; y++ {
		assert.Equal(t, []byte{0xee, 0xee}, s.Pix[y*8+6:y*8+8])
	}
}

func TestDecodeMovieImageSkipIsNotLiteral(t *testing.T) {
	literals := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	src, h := build(4, 4, 2, ops(3), nil, literals, streamFlags{})

	s := filled(4, 4, 0xee)
	require.NoError(t, DecodeMovieImage(src, h, s))
	assert.Equal(t, filled(4, 4, 0xee), s)

	require.NoError(t, DecodeImage(src, h, s, false))
	assert.Equal(t, literals[:4], s.Row(0))
}

func TestDecodeMovieImageShort(t *testing.T) {
	src, h := build(8, 4, 2, ops(2, 2), []byte{1, 2, 3, 4}, le32(columnMask), streamFlags{})
	err := DecodeMovieImage(src, h, NewSurface(8, 4))
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestMovieEncoderRoundTrip(t *testing.T) {
	p := grey()
	frame := NewSurface(10, 7)
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			frame.Pix[y*frame.Pitch+x] = byte((x/2 + y) % 3 * 40)
		}
	}

	e := NewMovieEncoder(10, 7)
	b, err := e.Encode(frame, p)
	require.NoError(t, err)

	h, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(10), h.Width)
	assert.Equal(t, uint16(7), h.Height)
	assert.Equal(t, len(b), h.Len())

	screen := NewSurface(10, 7)
	require.NoError(t, DecodeMovieImage(b, h, screen))
	assert.Equal(t, frame, screen)

	// Change a single pixel, only one block should be re-encoded
	frame.Pix[5*frame.Pitch+9] = 200
	b, err = e.Encode(frame, p)
	require.NoError(t, err)
	h, err = ParseHeader(b)
	require.NoError(t, err)

	require.NoError(t, DecodeMovieImage(b, h, screen))
	assert.Equal(t, frame, screen)
	assert.Equal(t, e.screen, screen)
}

func TestMovieEncoderReducesColors(t *testing.T) {
	p := grey()
	frame := NewSurface(4, 4)
	copy(frame.Pix, []byte{
		10, 10, 10, 10,
		20, 20, 20, 20,
		30, 30, 30, 40,
		40, 40, 50, 50,
	})

	e := NewMovieEncoder(4, 4)
	b, err := e.Encode(frame, p)
	require.NoError(t, err)
	h, err := ParseHeader(b)
	require.NoError(t, err)

	screen := NewSurface(4, 4)
	require.NoError(t, DecodeMovieImage(b, h, screen))
	assert.Equal(t, e.screen, screen)
	assert.Equal(t, []byte{40, 40, 40, 40}, screen.Row(3))
}

func TestMovieEncoderSize(t *testing.T) {
	_, err := NewMovieEncoder(4, 4).Encode(NewSurface(8, 4), grey())
	assert.Equal(t, ErrCorrupt, err)
}

func TestDecode(t *testing.T) {
	src, h := build(4, 4, 2, ops(2), []byte{1, 2, 3, 4}, le32(columnMask), streamFlags{})
	p := grey()

	c, err := DecodeConfig(bytes.NewReader(src), p)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Width)
	assert.Equal(t, 4, c.Height)

	m, err := Decode(bytes.NewReader(src), p)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), m.Bounds())
	assert.Equal(t, uint8(3), m.ColorIndexAt(2, 1))
	assert.Equal(t, color.RGBA{3, 3, 3, 0xff}, m.At(2, 1))

	_, err = Decode(bytes.NewReader(src[:h.Len()-1]), p)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestQuantize(t *testing.T) {
	m := image.NewRGBA(image.Rect(0, 0, 8, 8))
	colors := []color.RGBA{{0xff, 0, 0, 0xff}, {0, 0xff, 0, 0xff}, {0, 0, 0xff, 0xff}}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			m.Set(x, y, colors[(x+y)%3])
		}
	}

	s, p := Quantize(m)
	require.Equal(t, 8, s.Width)
	require.Equal(t, 8, s.Height)

	pal := p.Colors()
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.Equal(t, colors[(x+y)%3], pal[s.Pix[y*s.Pitch+x]])
		}
	}

	assert.Equal(t, s, Remap(m, p))
}
