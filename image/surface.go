package image

import (
	"fmt"
	"image"

	"github.com/bodgit/pmv/palette"
)

// Surface is an 8-bit paletted raster. Rows are Pitch bytes apart which may
// be more than Width.
type Surface struct {
	Width  int
	Height int
	Pitch  int
	Pix    []byte
}

// NewSurface returns a cleared surface of the given dimensions
func NewSurface(width, height int) *Surface {
	return &Surface{
		Width:  width,
		Height: height,
		Pitch:  width,
		Pix:    make([]byte, width*height),
	}
}

// Row returns the visible pixels of row y
func (s *Surface) Row(y int) []byte {
	return s.Pix[y*s.Pitch : y*s.Pitch+s.Width]
}

func (s *Surface) check() error {
	if s.Width > MaxWidth || s.Height > MaxHeight {
		return fmt.Errorf("%w: %dx%d", ErrTooLarge, s.Width, s.Height)
	}
	if s.Width < 0 || s.Height < 0 || s.Pitch < s.Width || (s.Height > 0 && len(s.Pix) < s.Pitch*(s.Height-1)+s.Width) {
		return fmt.Errorf("%w: bad surface", ErrCorrupt)
	}
	return nil
}

// Paletted returns a copy of the surface as an image.Paletted using p
func (s *Surface) Paletted(p *palette.Palette) *image.Paletted {
	m := image.NewPaletted(image.Rect(0, 0, s.Width, s.Height), p.Colors())
	for y := 0; y < s.Height; y++ {
		copy(m.Pix[y*m.Stride:], s.Row(y))
	}
	return m
}

// FromPaletted returns a surface holding a copy of the color indices of m
func FromPaletted(m *image.Paletted) *Surface {
	b := m.Bounds()
	s := NewSurface(b.Dx(), b.Dy())
	for y := 0; y < s.Height; y++ {
		i := m.PixOffset(b.Min.X, b.Min.Y+y)
		copy(s.Row(y), m.Pix[i:i+s.Width])
	}
	return s
}
