/*
Package pmv is a library for playing, writing and cataloguing PMV movies,
the cutscene format used by the MADE engine.

A movie is a MOVE chunk holding an MHED header chunk followed by one MFRM
chunk per frame. Each frame can carry compressed audio, a palette delta and
a block coded image. Playback is driven by the video; audio is handed off to
a queuing stream and never used for timing.
*/
package pmv

import (
	"errors"
	"time"

	"github.com/bodgit/pmv/palette"
)

var (
	// ErrBadHeader is returned when a movie does not start with the
	// expected chunks
	ErrBadHeader = errors.New("pmv: bad header")
	// ErrCorrupt is returned when a frame references data outside of
	// itself
	ErrCorrupt = errors.New("pmv: corrupt frame")
	// ErrBusy is returned when a Player is asked to play a second movie
	// concurrently
	ErrBusy = errors.New("pmv: player busy")
)

// Display receives decoded frames
type Display interface {
	// SetPalette replaces all 256 colors
	SetPalette(p *palette.Palette)
	// Size returns the dimensions of the screen
	Size() (int, int)
	// CopyRect copies a w by h block of pixels, pitch bytes apart, to the
	// screen at x, y
	CopyRect(pix []byte, pitch, x, y, w, h int)
	// Update presents the screen
	Update()
}

// AudioStream queues unsigned 8-bit mono PCM for playback
type AudioStream interface {
	// Queue appends pcm to the stream, the stream takes ownership of it
	Queue(pcm []byte) error
	// Finish marks that no more data will be queued
	Finish()
	// Stop halts playback
	Stop()
}

// Mixer plays audio streams
type Mixer interface {
	StopAll()
	PlayStream(rate int) (AudioStream, error)
}

// SoundDecoder decompresses the audio carried by each frame. One decoder is
// used for a whole movie so it may keep state between frames.
type SoundDecoder interface {
	Decompress(src, dst []byte, chunkSize, chunkCount int) error
}

// EventType identifies an input event
type EventType int

// Input events
const (
	EventKeyDown EventType = iota + 1
	EventKeyUp
)

// Key is a keyboard key code
type Key int

// KeyEscape cancels playback
const KeyEscape Key = 27

// Event is an input event
type Event struct {
	Type EventType
	Key  Key
}

// Events is a queue of pending input events
type Events interface {
	// PollEvent returns the next pending event, if any
	PollEvent() (Event, bool)
}

// Clock measures and waits for time to pass
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
