/*
Package chunk implements reading and writing of the tagged, length prefixed
blocks that make up a PMV movie.

Each chunk starts with an 8 byte header; a 4 byte tag stored big-endian
followed by a 4 byte little-endian payload length. The reader does not
enforce the payload length, the caller is expected to consume exactly Size
bytes before asking for the next header.
*/
package chunk

import (
	"encoding/binary"
	"errors"
	"io"
)

// HeaderSize is the length in bytes of a chunk header
const HeaderSize = 8

// Tag identifies the type of a chunk
type Tag uint32

// Tags found in a PMV movie
const (
	TagMovie  Tag = 'M'<<24 | 'O'<<16 | 'V'<<8 | 'E'
	TagHeader Tag = 'M'<<24 | 'H'<<16 | 'E'<<8 | 'D'
	TagFrame  Tag = 'M'<<24 | 'F'<<16 | 'R'<<8 | 'M'
)

func (t Tag) String() string {
	b := [4]byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)}
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '.'
		}
	}
	return string(b[:])
}

// Header is a chunk header
type Header struct {
	Tag  Tag
	Size uint32
}

var errNegativeSkip = errors.New("chunk: negative skip")

// Reader reads chunks and primitive values from an underlying stream. It
// tracks the current position and whether the end of the stream has been
// reached.
type Reader struct {
	r   io.Reader
	pos int64
	eos bool
	tmp [HeaderSize]byte
}

// NewReader returns a Reader reading from r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read implements io.Reader
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.pos += int64(n)
	if err == io.EOF {
		r.eos = true
	}
	return n, err
}

// ReadFull reads exactly len(p) bytes. A short read returns
// io.ErrUnexpectedEOF and marks the end of the stream.
func (r *Reader) ReadFull(p []byte) (int, error) {
	n, err := io.ReadFull(r, p)
	switch err {
	case io.EOF, io.ErrUnexpectedEOF:
		r.eos = true
		if len(p) > 0 {
			err = io.ErrUnexpectedEOF
		}
	}
	return n, err
}

// Next reads the next chunk header, consuming exactly HeaderSize bytes
func (r *Reader) Next() (Header, error) {
	if _, err := r.ReadFull(r.tmp[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Tag:  Tag(binary.BigEndian.Uint32(r.tmp[0:])),
		Size: binary.LittleEndian.Uint32(r.tmp[4:]),
	}, nil
}

// Uint16 reads a little-endian uint16
func (r *Reader) Uint16() (uint16, error) {
	if _, err := r.ReadFull(r.tmp[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.tmp[:]), nil
}

// Uint32 reads a little-endian uint32
func (r *Reader) Uint32() (uint32, error) {
	if _, err := r.ReadFull(r.tmp[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.tmp[:]), nil
}

// Skip discards the next n bytes
func (r *Reader) Skip(n int64) error {
	if n < 0 {
		return errNegativeSkip
	}
	m, err := io.CopyN(io.Discard, r.r, n)
	r.pos += m
	if err == io.EOF {
		r.eos = true
		err = io.ErrUnexpectedEOF
	}
	return err
}

// Pos returns the number of bytes consumed so far
func (r *Reader) Pos() int64 {
	return r.pos
}

// EOS reports whether the end of the stream has been reached
func (r *Reader) EOS() bool {
	return r.eos
}

// Writer writes chunks to an underlying stream
type Writer struct {
	w   io.Writer
	tmp [HeaderSize]byte
}

// NewWriter returns a Writer writing to w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes a chunk header on its own, used for container chunks
// whose payload is the following chunks.
func (w *Writer) WriteHeader(h Header) error {
	binary.BigEndian.PutUint32(w.tmp[0:], uint32(h.Tag))
	binary.LittleEndian.PutUint32(w.tmp[4:], h.Size)
	_, err := w.w.Write(w.tmp[:])
	return err
}

// WriteChunk writes a chunk header followed by its payload
func (w *Writer) WriteChunk(tag Tag, payload []byte) error {
	if err := w.WriteHeader(Header{Tag: tag, Size: uint32(len(payload))}); err != nil {
		return err
	}
	_, err := w.w.Write(payload)
	return err
}
