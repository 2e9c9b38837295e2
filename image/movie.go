package image

import (
	"encoding/binary"
	"fmt"
)

// DecodeMovieImage decodes a movie frame into s. Unlike DecodeImage the
// pixel and mask streams are always read a byte at a time and the skip
// opcode always leaves the block untouched, so every frame after the first
// is effectively a delta frame. Blocks overhanging the right or bottom edge
// are clipped.
//
// The flags are checked before anything is written to s.
func DecodeMovieImage(src []byte, h Header, s *Surface) error {
	if err := h.validate(); err != nil {
		return err
	}
	if err := s.check(); err != nil {
		return err
	}

	st, err := h.expand(src, s.Width, s.Height, 4)
	if err != nil {
		return err
	}

	lineSize := int(h.LineSize)
	groups, lastCount := commandLayout(lineSize, s.Width)
	bits := make([]byte, groups*2)

	bw := ((s.Width + blockSize - 1) / blockSize) * blockSize
	bx, by := 0, 0

	pixels, masks := st.pixel, st.mask
	cmdOfs := 0

	for height := s.Height; height > 0; height -= blockSize {
		if err := commandLine(st.cmd, cmdOfs, lineSize, bits); err != nil {
			return err
		}
		cmdOfs += lineSize

		for g := 0; g < groups; g++ {
			ops := binary.LittleEndian.Uint16(bits[g*2:])

			count := opsPerWord
			if g == groups-1 {
				count = lastCount
			}

			for c := 0; c < count; c++ {
				op := ops & 3
				ops >>= 2

				var block [blockCells]byte

				switch op {
				case opSolid:
					if len(pixels) < 1 {
						return fmt.Errorf("%w: pixel stream exhausted", ErrCorrupt)
					}
					for i := range block {
						block[i] = pixels[0]
					}
					pixels = pixels[1:]
				case opTwoColor:
					if len(pixels) < 2 || len(masks) < 2 {
						return fmt.Errorf("%w: streams exhausted", ErrCorrupt)
					}
					mask := binary.LittleEndian.Uint16(masks)
					for i := range block {
						block[i] = pixels[mask&1]
						mask >>= 1
					}
					pixels, masks = pixels[2:], masks[2:]
				case opFourColor:
					if len(pixels) < 4 || len(masks) < 4 {
						return fmt.Errorf("%w: streams exhausted", ErrCorrupt)
					}
					mask := binary.LittleEndian.Uint32(masks)
					for i := range block {
						block[i] = pixels[mask&3]
						mask >>= 2
					}
					pixels, masks = pixels[4:], masks[4:]
				}

				if op != opSkip && bx < s.Width && by < s.Height {
					maxW := min(blockSize, s.Width-bx)
					maxH := min(blockSize, s.Height-by)
					for yc := 0; yc < maxH; yc++ {
						row := s.Pix[(by+yc)*s.Pitch+bx:]
						copy(row[:maxW], block[yc*blockSize:yc*blockSize+maxW])
					}
				}

				bx += blockSize
				if bx >= bw {
					bx = 0
					by += blockSize
				}
			}
		}
	}

	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
