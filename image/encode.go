package image

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sort"

	"github.com/bodgit/pmv/palette"
	"github.com/bodgit/pmv/rle"
	"github.com/ericpauley/go-quantize/quantize"
)

var errTooBig = errors.New("image: encoded image too big")

// Quantize reduces m to at most 256 colors, returning the color indices as a
// surface along with the palette
func Quantize(m image.Image) (*Surface, *palette.Palette) {
	b := m.Bounds()

	pm, _ := m.(*image.Paletted)
	if pm == nil || len(pm.Palette) > palette.Entries {
		q := quantize.MedianCutQuantizer{}
		pm = image.NewPaletted(b, q.Quantize(make(color.Palette, 0, palette.Entries), m))
		draw.Draw(pm, b, m, b.Min, draw.Src)
	}

	return FromPaletted(pm), palette.FromColors(pm.Palette)
}

// Remap converts m to color indices using an existing palette
func Remap(m image.Image, p *palette.Palette) *Surface {
	b := m.Bounds()
	pm := image.NewPaletted(b, p.Colors())
	draw.Draw(pm, b, m, b.Min, draw.Src)
	return FromPaletted(pm)
}

// MovieEncoder encodes a sequence of frames for DecodeMovieImage. It keeps
// its own copy of what the decoder will have on screen so unchanged blocks
// can be skipped.
type MovieEncoder struct {
	screen *Surface
}

// NewMovieEncoder returns an encoder for frames of the given dimensions
func NewMovieEncoder(width, height int) *MovieEncoder {
	return &MovieEncoder{
		screen: NewSurface(width, height),
	}
}

type colorCount struct {
	index byte
	count int
}

// Encode returns the image data for s, including the header. Blocks with
// more than four colors are reduced to their four most common colors, the
// rest mapped to the nearest of those using p.
func (e *MovieEncoder) Encode(s *Surface, p *palette.Palette) ([]byte, error) {
	if s.Width != e.screen.Width || s.Height != e.screen.Height {
		return nil, ErrCorrupt
	}

	alignW := (s.Width + blockSize - 1) / blockSize
	groups := (alignW + opsPerWord - 1) / opsPerWord
	lineSize := groups * 2

	var cmd, pixels, masks []byte

	for by := 0; by < s.Height; by += blockSize {
		line := make([]byte, lineSize)
		for bx := 0; bx < alignW*blockSize; bx += blockSize {
			var block [blockCells]byte
			var valid [blockCells]bool
			same := true
			for i := range block {
				x, y := bx+i%blockSize, by+i/blockSize
				if x >= s.Width || y >= s.Height {
					continue
				}
				valid[i] = true
				block[i] = s.Pix[y*s.Pitch+x]
				if block[i] != e.screen.Pix[y*e.screen.Pitch+x] {
					same = false
				}
			}

			op := opSkip
			if !same {
				var colors []byte
				op, colors = fit(&block, &valid, p)
				switch op {
				case opSolid:
					pixels = append(pixels, colors[0])
				case opTwoColor:
					var mask uint16
					for i := blockCells - 1; i >= 0; i-- {
						mask <<= 1
						if block[i] == colors[1] {
							mask |= 1
						}
					}
					pixels = append(pixels, colors[:2]...)
					masks = append(masks, byte(mask), byte(mask>>8))
				case opFourColor:
					var mask uint32
					for i := blockCells - 1; i >= 0; i-- {
						mask <<= 2
						for j, c := range colors {
							if block[i] == c {
								mask |= uint32(j)
								break
							}
						}
					}
					pixels = append(pixels, colors[:4]...)
					masks = append(masks, byte(mask), byte(mask>>8), byte(mask>>16), byte(mask>>24))
				}

				for i := range block {
					if valid[i] {
						x, y := bx+i%blockSize, by+i/blockSize
						e.screen.Pix[y*e.screen.Pitch+x] = block[i]
					}
				}
			}

			n := bx / blockSize
			line[n/opsPerWord*2+(n%opsPerWord)/4] |= byte(op) << ((n % 4) * 2)
		}
		cmd = append(cmd, line...)
	}

	h := Header{
		Width:    uint16(s.Width),
		Height:   uint16(s.Height),
		LineSize: uint16(lineSize),
	}

	var data []byte
	stream := func(b []byte, flags *uint16) {
		if c := rle.Compress(b); len(c) < len(b) {
			b = c
			*flags |= FlagRLE
		}
		data = append(data, b...)
	}

	stream(cmd, &h.CmdFlags)
	pixelOfs := HeaderSize + len(data)
	stream(pixels, &h.PixelFlags)
	maskOfs := HeaderSize + len(data)
	stream(masks, &h.MaskFlags)

	// Stream offsets are only 16 bits
	if maskOfs > 0xffff {
		return nil, errTooBig
	}
	h.CmdOffset, h.PixelOffset, h.MaskOffset = HeaderSize, uint16(pixelOfs), uint16(maskOfs)

	h.Size = uint32(HeaderSize + len(data) - 4)

	b, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(b, data...), nil
}

// fit picks the opcode and colors for a block, rewriting block so every
// valid cell uses one of the returned colors
func fit(block *[blockCells]byte, valid *[blockCells]bool, p *palette.Palette) (int, []byte) {
	counts := make(map[byte]int)
	for i, c := range block {
		if valid[i] {
			counts[c]++
		}
	}

	sorted := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		sorted = append(sorted, colorCount{c, n})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].index < sorted[j].index
	})

	colors := make([]byte, 0, 4)
	for i := 0; i < len(sorted) && i < 4; i++ {
		colors = append(colors, sorted[i].index)
	}

	// Map any remaining colors onto the closest survivor
	for i, c := range block {
		if !valid[i] {
			block[i] = colors[0]
			continue
		}
		if indexOf(colors, c) < 0 {
			block[i] = nearest(p, c, colors)
		}
	}

	switch len(colors) {
	case 1:
		return opSolid, colors
	case 2:
		return opTwoColor, colors
	}
	for len(colors) < 4 {
		colors = append(colors, colors[0])
	}
	return opFourColor, colors
}

func indexOf(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Copied from color.sqDiff
func sqDiff(x, y uint32) uint32 {
	d := x - y
	return (d * d) >> 2
}

func nearest(p *palette.Palette, c byte, candidates []byte) byte {
	r1, g1, b1 := uint32(p[int(c)*3]), uint32(p[int(c)*3+1]), uint32(p[int(c)*3+2])
	best, bestSum := candidates[0], uint32(1<<32-1)
	for _, o := range candidates {
		r2, g2, b2 := uint32(p[int(o)*3]), uint32(p[int(o)*3+1]), uint32(p[int(o)*3+2])
		if sum := sqDiff(r1, r2) + sqDiff(g1, g2) + sqDiff(b1, b2); sum < bestSum {
			best, bestSum = o, sum
		}
	}
	return best
}
