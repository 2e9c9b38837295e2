package pmv

import (
	"bytes"
	"encoding/binary"
	"errors"
	stdimage "image"
	"io"

	"github.com/bodgit/pmv/chunk"
	"github.com/bodgit/pmv/image"
	"github.com/bodgit/pmv/palette"
)

var (
	errClosed       = errors.New("pmv: writer closed")
	errTooManyFrame = errors.New("pmv: too many frames")
	errSize         = errors.New("pmv: frame size differs from first frame")
)

// Audio is the compressed audio carried by a frame. Data decompresses to
// ChunkSize * ChunkCount bytes of PCM.
type Audio struct {
	ChunkSize  uint16
	ChunkCount uint16
	Data       []byte
}

// Frame is the content of a single frame, any part may be omitted
type Frame struct {
	Audio   *Audio
	Palette []byte // palette delta
	Image   []byte // encoded image including its header
}

// Writer writes a PMV movie. Frames are buffered until Close so the header
// can record the final frame count.
type Writer struct {
	w      io.Writer
	header Header
	frames bytes.Buffer
	count  int
	closed bool

	palette *palette.Palette // as the decoder will have it after pending
	pending []byte
	encoder *image.MovieEncoder
	width   int
	height  int
}

// NewWriter returns a Writer for a movie with the given frame delay in
// milliseconds and audio sample rate. The initial palette is taken from the
// first image written unless SetPalette is called first.
func NewWriter(w io.Writer, frameDelay, soundFreq uint16) *Writer {
	return &Writer{
		w: w,
		header: Header{
			FrameDelay: frameDelay,
			SoundFreq:  soundFreq,
		},
	}
}

// SetPalette changes the palette. Before the first frame, or if no palette
// has been set yet, it sets the initial palette. Otherwise a delta is
// attached to the next frame.
func (w *Writer) SetPalette(p *palette.Palette) {
	if w.palette == nil || w.count == 0 {
		w.header.Palette = *p
		w.palette = new(palette.Palette)
		*w.palette = *p
		return
	}
	w.pending = append(w.pending, palette.Diff(w.palette, p)...)
	*w.palette = *p
}

// WriteFrame appends a raw frame
func (w *Writer) WriteFrame(f Frame) error {
	if w.closed {
		return errClosed
	}
	if w.count == 0xffff {
		return errTooManyFrame
	}

	if w.pending != nil {
		f.Palette = append(append([]byte{}, w.pending...), f.Palette...)
		w.pending = nil
	}

	payload := make([]byte, frameHeaderSize)

	if f.Audio != nil {
		b := make([]byte, 8, 8+len(f.Audio.Data))
		binary.LittleEndian.PutUint32(b[0:], uint32(8+len(f.Audio.Data)))
		binary.LittleEndian.PutUint16(b[4:], f.Audio.ChunkSize)
		binary.LittleEndian.PutUint16(b[6:], f.Audio.ChunkCount)
		binary.LittleEndian.PutUint32(payload[audioOffset:], uint32(len(payload)+subChunkBias))
		payload = append(payload, append(b, f.Audio.Data...)...)
	}

	if len(f.Palette) > 0 {
		b := make([]byte, 8, 8+len(f.Palette))
		binary.LittleEndian.PutUint32(b[0:], uint32(8+len(f.Palette)))
		binary.LittleEndian.PutUint32(b[4:], uint32(len(f.Palette)))
		binary.LittleEndian.PutUint32(payload[paletteOffset:], uint32(len(payload)+subChunkBias))
		payload = append(payload, append(b, f.Palette...)...)
	}

	if len(f.Image) > 0 {
		binary.LittleEndian.PutUint32(payload[imageOffset:], uint32(len(payload)+subChunkBias))
		payload = append(payload, f.Image...)
	}

	if err := chunk.NewWriter(&w.frames).WriteChunk(chunk.TagFrame, payload); err != nil {
		return err
	}
	w.count++

	return nil
}

// WriteImage encodes m as the next frame. The first image fixes the
// dimensions of the movie and, if no palette has been set, is quantized to
// create it. Later images are mapped onto the current palette.
func (w *Writer) WriteImage(m stdimage.Image) error {
	var s *image.Surface
	if w.palette == nil {
		var p *palette.Palette
		s, p = image.Quantize(m)
		w.SetPalette(p)
	} else {
		s = image.Remap(m, w.palette)
	}

	if w.encoder == nil {
		w.width, w.height = s.Width, s.Height
		w.encoder = image.NewMovieEncoder(s.Width, s.Height)
	}
	if s.Width != w.width || s.Height != w.height {
		return errSize
	}

	b, err := w.encoder.Encode(s, w.palette)
	if err != nil {
		return err
	}

	return w.WriteFrame(Frame{Image: b})
}

// Close writes the header and all of the frames to the underlying writer
func (w *Writer) Close() error {
	if w.closed {
		return errClosed
	}
	w.closed = true

	w.header.FrameCount = uint16(w.count)
	header := w.header.marshal()

	cw := chunk.NewWriter(w.w)
	if err := cw.WriteHeader(chunk.Header{Tag: chunk.TagMovie, Size: uint32(chunk.HeaderSize + len(header) + w.frames.Len())}); err != nil {
		return err
	}
	if err := cw.WriteChunk(chunk.TagHeader, header); err != nil {
		return err
	}
	_, err := w.frames.WriteTo(w.w)
	return err
}
