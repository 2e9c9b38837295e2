package main

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/bodgit/pmv"
	"github.com/bodgit/pmv/palette"
)

var errScreen = errors.New("screen must be WIDTHxHEIGHT")

func parseScreen(s string) (int, int, error) {
	var w, h int
	if n, err := fmt.Sscanf(s, "%dx%d", &w, &h); err != nil || n != 2 || w <= 0 || h <= 0 {
		return 0, 0, errScreen
	}
	return w, h, nil
}

// pngDisplay writes every presented screen to a numbered PNG file in dir.
// With no dir the screens are discarded.
type pngDisplay struct {
	dir    string
	screen *image.Paletted
	frame  int
	err    error
}

func newPNGDisplay(dir string, width, height int) *pngDisplay {
	return &pngDisplay{
		dir:    dir,
		screen: image.NewPaletted(image.Rect(0, 0, width, height), new(palette.Palette).Colors()),
	}
}

func (d *pngDisplay) SetPalette(p *palette.Palette) {
	d.screen.Palette = p.Colors()
}

func (d *pngDisplay) Size() (int, int) {
	b := d.screen.Bounds()
	return b.Dx(), b.Dy()
}

func (d *pngDisplay) CopyRect(pix []byte, pitch, x, y, w, h int) {
	r := image.Rect(x, y, x+w, y+h).Intersect(d.screen.Bounds())
	for row := r.Min.Y; row < r.Max.Y; row++ {
		src := pix[(row-y)*pitch+r.Min.X-x:]
		copy(d.screen.Pix[d.screen.PixOffset(r.Min.X, row):], src[:r.Dx()])
	}
}

func (d *pngDisplay) Update() {
	d.frame++
	if d.dir == "" || d.err != nil {
		return
	}
	d.err = writePNG(filepath.Join(d.dir, fmt.Sprintf("frame%05d.png", d.frame)), d.screen)
}

type noEvents struct{}

func (noEvents) PollEvent() (pmv.Event, bool) {
	return pmv.Event{}, false
}

// fastClock never waits, time only passes when asked to sleep
type fastClock struct {
	now time.Time
}

func (c *fastClock) Now() time.Time {
	return c.now
}

func (c *fastClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
}

type nullStream struct{}

func (nullStream) Queue([]byte) error { return nil }

func (nullStream) Finish() {}

func (nullStream) Stop() {}

type nullMixer struct{}

func (nullMixer) StopAll() {}

func (nullMixer) PlayStream(int) (pmv.AudioStream, error) {
	return nullStream{}, nil
}
