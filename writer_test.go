package pmv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	stdimage "image"
	"image/color"
	"testing"

	"github.com/bodgit/pmv/palette"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testColors = color.Palette{
	color.RGBA{0xff, 0x00, 0x00, 0xff},
	color.RGBA{0x00, 0xff, 0x00, 0xff},
	color.RGBA{0x00, 0x00, 0xff, 0xff},
	color.RGBA{0xff, 0xff, 0xff, 0xff},
}

// stripes returns an image of vertical stripes cycling through testColors
// starting at color first
func stripes(width, height, first int) *stdimage.Paletted {
	m := stdimage.NewPaletted(stdimage.Rect(0, 0, width, height), testColors)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m.SetColorIndex(x, y, uint8((x+first)%len(testColors)))
		}
	}
	return m
}

func TestWriterImages(t *testing.T) {
	b := new(bytes.Buffer)
	w := NewWriter(b, 50, 22050)
	require.Nil(t, w.WriteImage(stripes(12, 6, 0)))
	require.Nil(t, w.WriteImage(stripes(12, 6, 1)))
	require.Nil(t, w.Close())

	assert.Equal(t, errClosed, w.Close())
	assert.Equal(t, errClosed, w.WriteFrame(Frame{}))

	f := newFixture()
	result, err := f.player.Play(context.Background(), f.reader(b.Bytes()))
	require.Nil(t, err)
	assert.Equal(t, Result{Frames: 2}, result)
	assert.Equal(t, *palette.FromColors(testColors), f.display.palette)

	assert.Equal(t, stripes(12, 6, 1).Pix, f.display.region(2, 5, 12, 6))
}

func TestWriterImageSize(t *testing.T) {
	w := NewWriter(new(bytes.Buffer), 50, 22050)
	require.Nil(t, w.WriteImage(stripes(8, 8, 0)))
	assert.Equal(t, errSize, w.WriteImage(stripes(4, 4, 0)))
}

func TestWriterPaletteChange(t *testing.T) {
	b := new(bytes.Buffer)
	w := NewWriter(b, 50, 22050)
	w.SetPalette(testPalette())
	require.Nil(t, w.WriteFrame(Frame{}))

	p := testPalette()
	p[30], p[31], p[32] = 0xaa, 0xbb, 0xcc
	w.SetPalette(p)

	p = testPalette()
	p[30], p[31], p[32] = 0xaa, 0xbb, 0xcc
	p[300] = 0x01
	w.SetPalette(p)

	require.Nil(t, w.WriteFrame(Frame{}))
	require.Nil(t, w.Close())

	f := newFixture()
	result, err := f.player.Play(context.Background(), f.reader(b.Bytes()))
	require.Nil(t, err)
	assert.Equal(t, Result{Frames: 2}, result)
	assert.Equal(t, 2, f.display.palettes)
	assert.Equal(t, *p, f.display.palette)
}

func TestWriterAudio(t *testing.T) {
	b := new(bytes.Buffer)
	w := NewWriter(b, 50, 22050)
	require.Nil(t, w.WriteFrame(Frame{Audio: &Audio{ChunkSize: 2, ChunkCount: 3, Data: []byte{1}}}))
	require.Nil(t, w.Close())

	decoder := new(fakeDecoder)
	f := newFixture(WithSoundDecoder(func() SoundDecoder { return decoder }))
	_, err := f.player.Play(context.Background(), f.reader(b.Bytes()))
	require.Nil(t, err)

	assert.Equal(t, [][]byte{bytes.Repeat([]byte{0x42}, 6)}, f.mixer.stream.queued)
}

func TestReadInfo(t *testing.T) {
	b := new(bytes.Buffer)
	w := NewWriter(b, 40, 11127)
	require.Nil(t, w.WriteFrame(Frame{Audio: &Audio{ChunkSize: 2, ChunkCount: 1}}))
	require.Nil(t, w.WriteImage(stripes(8, 4, 2)))
	require.Nil(t, w.Close())

	info, err := ReadInfo(bytes.NewReader(b.Bytes()))
	require.Nil(t, err)

	assert.Equal(t, uint16(40), info.FrameDelay)
	assert.Equal(t, uint16(2), info.FrameCount)
	assert.Equal(t, 11025, info.Rate())
	assert.Equal(t, 8, info.Width)
	assert.Equal(t, 4, info.Height)
	require.NotNil(t, info.Poster)
	assert.Equal(t, stripes(8, 4, 2).Pix, info.Poster.Pix)
}

func TestReadInfoNoImage(t *testing.T) {
	info, err := ReadInfo(bytes.NewReader(rawMovie(t, 1, make([]byte, frameHeaderSize))))
	require.Nil(t, err)
	assert.Nil(t, info.Poster)
	assert.Equal(t, 0, info.Width)

	_, err = ReadInfo(bytes.NewReader([]byte("not a movie")))
	assert.NotNil(t, err)
}

func TestMovieInfoCorrupt(t *testing.T) {
	payload := func(at int, v uint32, extra ...byte) []byte {
		b := make([]byte, frameHeaderSize)
		binary.LittleEndian.PutUint32(b[at:], v)
		return append(b, extra...)
	}

	tables := map[string][]byte{
		"image":   payload(imageOffset, 4),
		"palette": payload(paletteOffset, frameHeaderSize+subChunkBias, 8, 0, 0, 0, 100, 0, 0, 0),
	}

	// Info and playback reject the same frames
	for name, table := range tables {
		t.Run(name, func(t *testing.T) {
			b := rawMovie(t, 1, table)

			_, err := ReadInfo(bytes.NewReader(b))
			assert.True(t, errors.Is(err, ErrCorrupt))

			f := newFixture()
			_, err = f.player.Play(context.Background(), f.reader(b))
			assert.True(t, errors.Is(err, ErrCorrupt))
		})
	}
}
