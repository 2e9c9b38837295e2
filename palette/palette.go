/*
Package palette implements the 256 color palette of a PMV movie along with
the sparse delta encoding used to update it between frames.

A delta is a sequence of records, each a count byte and a starting entry
byte followed by count+1 RGB triples. The pair (255, 255) terminates the
sequence early.
*/
package palette

import (
	"errors"
	"image/color"
)

const (
	// Entries is the number of colors in a palette
	Entries = 256
	// Size is the length in bytes of a raw palette
	Size = Entries * 3
)

const terminator = 0xff

// ErrCorrupt is returned when a delta record is truncated or addresses
// entries past the end of the palette
var ErrCorrupt = errors.New("palette: corrupt delta")

// Palette holds 256 RGB triples
type Palette [Size]byte

// Patch applies the delta encoded in b to p
func (p *Palette) Patch(b []byte) error {
	for i := 0; i < len(b); {
		if i+2 > len(b) {
			return ErrCorrupt
		}
		count, entry := int(b[i]), int(b[i+1])
		i += 2
		if count == terminator && entry == terminator {
			break
		}
		n := (count + 1) * 3
		if i+n > len(b) || entry*3+n > Size {
			return ErrCorrupt
		}
		copy(p[entry*3:], b[i:i+n])
		i += n
	}
	return nil
}

// Diff returns the delta that turns from into to. An empty delta means the
// palettes are identical.
func Diff(from, to *Palette) []byte {
	var b []byte
	for i := 0; i < Entries; {
		if equal(from, to, i) {
			i++
			continue
		}
		// Extend the run over unchanged entries too if they're followed
		// by another change, a record header costs two bytes which is
		// less than one triple
		j := i + 1
		for j < Entries {
			if !equal(from, to, j) {
				j++
				continue
			}
			if j+1 < Entries && !equal(from, to, j+1) {
				j += 2
				continue
			}
			break
		}
		b = append(b, byte(j-i-1), byte(i))
		b = append(b, to[i*3:j*3]...)
		i = j
	}
	return b
}

func equal(a, b *Palette, i int) bool {
	return a[i*3] == b[i*3] && a[i*3+1] == b[i*3+1] && a[i*3+2] == b[i*3+2]
}

// Colors returns p as a color.Palette suitable for an image.Paletted
func (p *Palette) Colors() color.Palette {
	c := make(color.Palette, Entries)
	for i := range c {
		c[i] = color.RGBA{p[i*3], p[i*3+1], p[i*3+2], 0xff}
	}
	return c
}

// FromColors builds a palette from c, any unused entries are black
func FromColors(c color.Palette) *Palette {
	p := new(Palette)
	for i := 0; i < len(c) && i < Entries; i++ {
		r, g, b, _ := c[i].RGBA()
		p[i*3], p[i*3+1], p[i*3+2] = byte(r>>8), byte(g>>8), byte(b>>8)
	}
	return p
}
