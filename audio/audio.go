/*
Package audio provides headless audio sinks for movie playback.

WAV is a mixer that records the single stream it plays to a RIFF WAVE file
of unsigned 8-bit mono PCM. Silence is a sound decoder that produces the
right amount of silence for each frame which keeps the audio track the same
length as the video when the real decoder isn't available.
*/
package audio

import (
	"errors"
	"io"
	"sync"

	"github.com/bodgit/pmv"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth  = 8
	channels  = 1
	formatPCM = 1
	silence   = 0x80
)

var (
	errShort    = errors.New("audio: destination too short")
	errBusy     = errors.New("audio: stream already playing")
	errFinished = errors.New("audio: stream finished")
)

// Silence is a pmv.SoundDecoder that ignores the compressed audio
type Silence struct{}

// Decompress fills chunkSize * chunkCount bytes of dst with silence
func (Silence) Decompress(src, dst []byte, chunkSize, chunkCount int) error {
	n := chunkSize * chunkCount
	if len(dst) < n {
		return errShort
	}
	for i := range dst[:n] {
		dst[i] = silence
	}
	return nil
}

// WAV is a pmv.Mixer writing to w
type WAV struct {
	mu     sync.Mutex
	w      io.WriteSeeker
	stream *Stream
}

// NewWAV returns a WAV mixer writing to w
func NewWAV(w io.WriteSeeker) *WAV {
	return &WAV{w: w}
}

// StopAll stops the current stream, if any
func (m *WAV) StopAll() {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

// PlayStream starts a new stream at rate and writes the file header. Only
// one stream can be recorded.
func (m *WAV) PlayStream(rate int) (pmv.AudioStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return nil, errBusy
	}

	s := &Stream{
		enc: wav.NewEncoder(m.w, rate, bitDepth, channels, formatPCM),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
			SourceBitDepth: bitDepth,
		},
	}
	if err := s.enc.Write(s.buf); err != nil {
		return nil, err
	}
	m.stream = s

	return s, nil
}

// Err returns the first error encountered writing the file, including any
// from finishing the stream
func (m *WAV) Err() error {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Err()
}

// Stream is a pmv.AudioStream recording PCM
type Stream struct {
	mu   sync.Mutex
	enc  *wav.Encoder
	buf  *goaudio.IntBuffer
	size int
	done bool
	err  error
}

// Queue appends pcm to the file
func (s *Stream) Queue(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return errFinished
	}
	if s.err != nil {
		return s.err
	}

	s.buf.Data = s.buf.Data[:0]
	for _, b := range pcm {
		s.buf.Data = append(s.buf.Data, int(b))
	}
	if s.err = s.enc.Write(s.buf); s.err != nil {
		return s.err
	}
	s.size += len(pcm)

	return nil
}

// Finish rewrites the header with the final length. Any error is kept and
// reported by Err.
func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.done = true

	if err := s.enc.Close(); err != nil && s.err == nil {
		s.err = err
	}
}

// Stop ends the stream, finishing it if that hasn't happened already
func (s *Stream) Stop() {
	s.Finish()
}

// Err returns the first error encountered by the stream
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Len returns the number of bytes of PCM recorded
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}
