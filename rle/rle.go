/*
Package rle implements the byte oriented run-length encoding used by the
streams of a PMV image.

Each run starts with a control byte v. Values below 0x80 introduce a literal
run of v+1 bytes copied verbatim, any other value repeats the following byte
257-v times.
*/
package rle

import "errors"

const (
	maxLiteral = 0x80
	minRepeat  = 3
	maxRepeat  = 257 - 0x80
)

// ErrCorrupt is returned when a run would read past the end of the source or
// write past the end of the destination
var ErrCorrupt = errors.New("rle: corrupt data")

// Decompress expands src into a new buffer of exactly size bytes. Any part of
// the buffer not covered by a run is left as zero.
func Decompress(src []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	o := 0
	for i := 0; i < len(src); {
		v := int(src[i])
		i++
		if v < 0x80 {
			v++
			if i+v > len(src) || o+v > size {
				return nil, ErrCorrupt
			}
			copy(dst[o:], src[i:i+v])
			i += v
		} else {
			v = 257 - v
			if i >= len(src) || o+v > size {
				return nil, ErrCorrupt
			}
			b := dst[o : o+v]
			for j := range b {
				b[j] = src[i]
			}
			i++
		}
		o += v
	}
	return dst, nil
}

// Compress encodes src so that Decompress(Compress(src), len(src)) returns
// src again
func Compress(src []byte) []byte {
	dst := make([]byte, 0, len(src)+len(src)/maxLiteral+1)
	lit := 0
	flush := func(end int) {
		for lit > 0 {
			n := lit
			if n > maxLiteral {
				n = maxLiteral
			}
			start := end - lit
			dst = append(dst, byte(n-1))
			dst = append(dst, src[start:start+n]...)
			lit -= n
		}
	}

	for i := 0; i < len(src); {
		run := 1
		for i+run < len(src) && src[i+run] == src[i] && run < maxRepeat {
			run++
		}
		if run >= minRepeat {
			flush(i)
			dst = append(dst, byte(257-run), src[i])
			i += run
			continue
		}
		lit += run
		i += run
	}
	flush(len(src))

	return dst
}
