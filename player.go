package pmv

import (
	"context"
	"encoding/binary"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bodgit/pmv/chunk"
	"github.com/bodgit/pmv/image"
	"github.com/bodgit/pmv/palette"
)

// Result describes how playback ended
type Result struct {
	// Aborted is set if the user cancelled playback
	Aborted bool
	// Frames is the number of frames decoded
	Frames int
}

// Player plays PMV movies
type Player struct {
	display Display
	mixer   Mixer
	events  Events
	logger  *log.Logger

	clock      Clock
	newDecoder func() SoundDecoder
	debug      bool

	mu   sync.Mutex
	busy bool
}

// Option configures a Player
type Option func(*Player)

// WithClock replaces the wall clock used for frame timing
func WithClock(c Clock) Option {
	return func(p *Player) {
		p.clock = c
	}
}

// WithSoundDecoder sets the function used to create a sound decoder for each
// movie. Without one any audio in a movie is skipped.
func WithSoundDecoder(f func() SoundDecoder) Option {
	return func(p *Player) {
		p.newDecoder = f
	}
}

// WithDebug enables logging of each chunk and frame
func WithDebug() Option {
	return func(p *Player) {
		p.debug = true
	}
}

// New returns a Player presenting to display, playing audio through mixer
// and watching events for the user cancelling playback
func New(display Display, mixer Mixer, events Events, logger *log.Logger, options ...Option) *Player {
	p := &Player{
		display: display,
		mixer:   mixer,
		events:  events,
		logger:  logger,
		clock:   realClock{},
	}
	for _, o := range options {
		o(p)
	}
	return p
}

type session struct {
	r      *chunk.Reader
	closer io.Closer

	header  *Header
	palette palette.Palette

	frame   []byte
	surface *image.Surface

	stream  AudioStream
	decoder SoundDecoder

	frameNumber int
}

func (p *Player) debugf(format string, v ...interface{}) {
	if p.debug {
		p.logger.Printf(format, v...)
	}
}

// PlayFile opens and plays the movie in file. Backslashes are accepted as
// path separators.
func (p *Player) PlayFile(ctx context.Context, file string) (Result, error) {
	f, err := os.Open(filepath.Clean(strings.ReplaceAll(file, "\\", string(os.PathSeparator))))
	if err != nil {
		p.logger.Printf("Failed to open movie file \"%s\"\n", file)
		return Result{}, err
	}
	return p.Play(ctx, f)
}

// Play plays the movie read from r until it finishes, the user presses
// Escape or ctx is cancelled. If r is an io.Closer it is closed when
// playback ends.
func (p *Player) Play(ctx context.Context, r io.Reader) (Result, error) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return Result{}, ErrBusy
	}
	p.busy = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	s, err := p.load(r)
	if err != nil {
		return Result{}, err
	}
	defer p.close(s)

	start := p.clock.Now()
	delay := time.Duration(s.header.FrameDelay) * time.Millisecond

	var aborted bool
	for ctx.Err() == nil && !aborted && !s.r.EOS() && s.frameNumber < int(s.header.FrameCount) {
		ok, err := p.decodeFrame(s)
		if err != nil {
			return Result{Frames: s.frameNumber}, err
		}
		if !ok {
			break
		}

		// Wait until the frame is due, then flip
		wait := time.Duration(s.frameNumber-1)*delay - p.clock.Now().Sub(start)
		if wait < 0 {
			behind := -wait.Milliseconds()
			frames := int64(1)
			if delay > 0 {
				frames += -int64(wait / delay)
			}
			p.logger.Printf("Video A/V sync broken - running behind %d ms (%d frames)!\n", behind, frames)
		} else {
			p.clock.Sleep(wait)
		}

		p.display.Update()

		// The user can press Escape to exit early
		for {
			e, ok := p.events.PollEvent()
			if !ok {
				break
			}
			if e.Type == EventKeyDown && e.Key == KeyEscape {
				aborted = true
			}
		}
	}

	return Result{Aborted: aborted, Frames: s.frameNumber}, nil
}

func (p *Player) load(r io.Reader) (*session, error) {
	s := &session{
		r: chunk.NewReader(r),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}

	h, err := readHeader(s.r)
	if err != nil {
		p.logger.Printf("Unexpected PMV video header: %v\n", err)
		p.closeStream(s)
		return nil, err
	}
	s.header = h

	p.debugf("frameDelay = %d; frameCount = %d; soundFreq = %d; unknown = %v\n", h.FrameDelay, h.FrameCount, h.SoundFreq, h.Unknown)

	s.palette = h.Palette
	p.display.SetPalette(&s.palette)

	// Only one movie can have audio playing at a time
	p.mixer.StopAll()
	if s.stream, err = p.mixer.PlayStream(h.Rate()); err != nil {
		p.closeStream(s)
		return nil, err
	}

	if p.newDecoder != nil {
		s.decoder = p.newDecoder()
	}

	return s, nil
}

// decodeFrame decodes the next frame, returning false if the stream ended.
// Any error is a format error and ends playback.
func (p *Player) decodeFrame(s *session) (bool, error) {
	c, err := s.r.Next()
	if err != nil {
		p.logger.Printf("Failed to read frame %d: %v\n", s.frameNumber, err)
		return false, nil
	}

	p.debugf("ofs = %08X; chunkType = %s; chunkSize = %d\n", s.r.Pos(), c.Tag, c.Size)

	if c.Tag != chunk.TagFrame {
		p.logger.Printf("Unknown chunk type '%s'\n", c.Tag)
		return false, nil
	}
	if err := checkFrameSize(c.Size); err != nil {
		return false, err
	}

	// Only reallocate the frame buffer if it needs to grow
	if uint32(cap(s.frame)) < c.Size {
		s.frame = make([]byte, c.Size)
	}
	s.frame = s.frame[:c.Size]

	// The final frame may arrive along with the end of the stream
	if n, err := s.r.ReadFull(s.frame); err != nil || n < len(s.frame) {
		p.logger.Printf("Short read of frame %d\n", s.frameNumber)
		return false, nil
	}

	if ofs := binary.LittleEndian.Uint32(s.frame[audioOffset:]); ofs != 0 {
		if err := p.decodeAudio(s, ofs); err != nil {
			return false, err
		}
	}

	if ofs := binary.LittleEndian.Uint32(s.frame[paletteOffset:]); ofs != 0 {
		if err := p.decodePalette(s, ofs); err != nil {
			return false, err
		}
	}

	if ofs := binary.LittleEndian.Uint32(s.frame[imageOffset:]); ofs != 0 {
		if err := p.decodeImage(s, ofs); err != nil {
			return false, err
		}
	}

	s.frameNumber++

	return true, nil
}

func (p *Player) decodeAudio(s *session, ofs uint32) error {
	src, chunkSize, chunkCount, err := frameAudio(s.frame, ofs)
	if err != nil {
		return err
	}

	p.debugf("SOUND: chunkCount = %d; chunkSize = %d; total = %d\n", chunkCount, chunkSize, chunkCount*chunkSize)

	if s.decoder == nil {
		p.debugf("No sound decoder, skipping audio for frame %d\n", s.frameNumber)
		return nil
	}

	pcm := make([]byte, chunkSize*chunkCount)
	if err := s.decoder.Decompress(src, pcm, chunkSize, chunkCount); err != nil {
		return err
	}

	return s.stream.Queue(pcm)
}

func (p *Player) decodePalette(s *session, ofs uint32) error {
	if err := framePalette(s.frame, ofs, &s.palette); err != nil {
		return err
	}
	p.display.SetPalette(&s.palette)

	return nil
}

func (p *Player) decodeImage(s *session, ofs uint32) error {
	surface, h, err := frameImage(s.frame, ofs, s.surface)
	s.surface = surface

	p.debugf("width = %d; height = %d; cmdOffs = %04X; cmdFlags = %04X; pixelOffs = %04X; pixelFlags = %04X; maskOffs = %04X; maskFlags = %04X; lineSize = %d\n",
		h.Width, h.Height, h.CmdOffset, h.CmdFlags, h.PixelOffset, h.PixelFlags, h.MaskOffset, h.MaskFlags, h.LineSize)

	if err != nil {
		return err
	}

	sw, sh := p.display.Size()
	p.display.CopyRect(s.surface.Pix, s.surface.Pitch, (sw-s.surface.Width)/2, (sh-s.surface.Height)/2, s.surface.Width, s.surface.Height)

	return nil
}

// close tears down the video, then the audio and finally the stream
func (p *Player) close(s *session) {
	s.surface = nil

	s.frame = nil

	s.decoder = nil
	if s.stream != nil {
		s.stream.Finish()
		s.stream.Stop()
		s.stream = nil
	}

	p.closeStream(s)
}

func (p *Player) closeStream(s *session) {
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			p.logger.Printf("Failed to close movie: %v\n", err)
		}
		s.closer = nil
	}
	s.r = nil
}
