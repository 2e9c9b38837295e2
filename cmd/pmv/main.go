package main

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bodgit/pmv"
	"github.com/bodgit/pmv/audio"
	pmvimage "github.com/bodgit/pmv/image"
	"github.com/bodgit/pmv/palette"
	"github.com/urfave/cli/v2"
)

const (
	defaultDB     = "pmv.db"
	defaultScreen = "320x200"
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(ioutil.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

func writePNG(file string, m image.Image) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := png.Encode(f, m); err != nil {
		return err
	}

	return f.Close()
}

func greyPalette() *palette.Palette {
	p := new(palette.Palette)
	for i := 0; i < palette.Entries; i++ {
		p[i*3], p[i*3+1], p[i*3+2] = byte(i), byte(i), byte(i)
	}
	return p
}

func info(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer f.Close()

	i, err := pmv.ReadInfo(f)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	fmt.Printf("Frame delay: %d ms\n", i.FrameDelay)
	fmt.Printf("Frame count: %d\n", i.FrameCount)
	fmt.Printf("Duration: %d ms\n", i.Duration())
	fmt.Printf("Sound frequency: %d Hz (played at %d Hz)\n", i.SoundFreq, i.Rate())
	if i.Poster != nil {
		fmt.Printf("Dimensions: %dx%d\n", i.Width, i.Height)
	}

	return nil
}

func play(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	logger := newLogger(c)

	width, height, err := parseScreen(c.String("screen"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	if dir := c.String("out"); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return cli.NewExitError(err, 1)
		}
	}
	display := newPNGDisplay(c.String("out"), width, height)

	var (
		mixer pmv.Mixer = nullMixer{}
		wav   *audio.WAV
		f     *os.File
	)
	if file := c.String("wav"); file != "" {
		if f, err = os.Create(file); err != nil {
			return cli.NewExitError(err, 1)
		}
		defer f.Close()
		wav = audio.NewWAV(f)
		mixer = wav
	}

	options := []pmv.Option{
		pmv.WithSoundDecoder(func() pmv.SoundDecoder { return audio.Silence{} }),
	}
	if !c.Bool("realtime") {
		options = append(options, pmv.WithClock(new(fastClock)))
	}
	if c.Bool("verbose") {
		options = append(options, pmv.WithDebug())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := pmv.New(display, mixer, noEvents{}, logger, options...).PlayFile(ctx, c.Args().First())
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if display.err != nil {
		return cli.NewExitError(display.err, 1)
	}
	if wav != nil {
		if err := wav.Err(); err != nil {
			return cli.NewExitError(err, 1)
		}
		if err := f.Close(); err != nil {
			return cli.NewExitError(err, 1)
		}
	}

	logger.Printf("Played %d frames, aborted: %t\n", result.Frames, result.Aborted)

	return nil
}

func decodeImage(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	b, err := ioutil.ReadFile(c.Args().Get(0))
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	h, err := pmvimage.ParseHeader(b)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if h.Width > pmvimage.MaxWidth || h.Height > pmvimage.MaxHeight {
		return cli.NewExitError(pmvimage.ErrTooLarge, 1)
	}

	s := pmvimage.NewSurface(int(h.Width), int(h.Height))
	if err := pmvimage.DecodeImage(b, h, s, c.Bool("delta")); err != nil {
		return cli.NewExitError(err, 1)
	}

	if err := writePNG(c.Args().Get(1), s.Paletted(greyPalette())); err != nil {
		return cli.NewExitError(err, 1)
	}

	return nil
}

func decodeFile(file string) (image.Image, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, _, err := image.Decode(f)
	return m, err
}

func encode(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	logger := newLogger(c)

	f, err := os.Create(c.Args().First())
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer f.Close()

	w := pmv.NewWriter(f, uint16(c.Uint("delay")), uint16(c.Uint("freq")))
	for _, file := range c.Args().Tail() {
		m, err := decodeFile(file)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		if err := w.WriteImage(m); err != nil {
			return cli.NewExitError(err, 1)
		}
		logger.Printf("Encoded \"%s\"\n", file)
	}

	if err := w.Close(); err != nil {
		return cli.NewExitError(err, 1)
	}

	if err := f.Close(); err != nil {
		return cli.NewExitError(err, 1)
	}

	return nil
}

func scan(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	catalog, err := pmv.NewCatalog(c.String("db"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer catalog.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := pmv.Scan(ctx, c.Args().First(), catalog, newLogger(c)); err != nil {
		return cli.NewExitError(err, 1)
	}

	return nil
}

func list(c *cli.Context) error {
	catalog, err := pmv.NewCatalog(c.String("db"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer catalog.Close()

	entries, err := catalog.List()
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	for _, e := range entries {
		fmt.Printf("%s\t%s\t%dx%d\t%d frames\t%d ms\t%d Hz\n", e.Name, e.CRC, e.Width, e.Height, e.FrameCount, e.FrameDelay, e.SoundFreq)
	}

	return nil
}

func poster(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	catalog, err := pmv.NewCatalog(c.String("db"))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer catalog.Close()

	m, err := catalog.Poster(c.Args().Get(0))
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	if m == nil {
		return cli.NewExitError(fmt.Sprintf("no poster for \"%s\"", c.Args().Get(0)), 1)
	}

	if err := writePNG(c.Args().Get(1), m); err != nil {
		return cli.NewExitError(err, 1)
	}

	return nil
}

func main() {
	app := cli.NewApp()

	app.Name = "pmv"
	app.Usage = "MADE engine PMV movie utility"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"PMV_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to database",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "info",
			Usage:     "Print movie metadata",
			ArgsUsage: "FILE",
			Action:    info,
		},
		{
			Name:      "play",
			Usage:     "Play a movie to PNG frames and a WAV file",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "out",
					Usage: "directory to write frames to",
				},
				&cli.StringFlag{
					Name:  "wav",
					Usage: "file to write audio to",
				},
				&cli.BoolFlag{
					Name:  "realtime",
					Usage: "play at the speed of the movie",
				},
				&cli.StringFlag{
					Name:    "screen",
					EnvVars: []string{"PMV_SCREEN"},
					Value:   defaultScreen,
					Usage:   "screen dimensions",
				},
			},
			Action: play,
		},
		{
			Name:      "decode-image",
			Usage:     "Decode a standalone image to PNG",
			ArgsUsage: "FILE OUTPUT",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "delta",
					Usage: "decode as a delta frame",
				},
			},
			Action: decodeImage,
		},
		{
			Name:      "encode",
			Usage:     "Create a movie from a sequence of images",
			ArgsUsage: "OUTPUT FRAME...",
			Flags: []cli.Flag{
				&cli.UintFlag{
					Name:  "delay",
					Value: 66,
					Usage: "frame delay in milliseconds",
				},
				&cli.UintFlag{
					Name:  "freq",
					Value: 22050,
					Usage: "sound frequency",
				},
			},
			Action: encode,
		},
		{
			Name:      "scan",
			Usage:     "Scan filesystem and catalog movies",
			ArgsUsage: "DIRECTORY",
			Action:    scan,
		},
		{
			Name:   "list",
			Usage:  "List catalogued movies",
			Action: list,
		},
		{
			Name:      "poster",
			Usage:     "Write the poster frame of a catalogued movie",
			ArgsUsage: "NAME OUTPUT",
			Action:    poster,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
