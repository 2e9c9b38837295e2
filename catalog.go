package pmv

import (
	"database/sql"
	"errors"
	"fmt"
	stdimage "image"

	"github.com/bodgit/pmv/image"
	"github.com/bodgit/pmv/palette"
	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

var errPoster = errors.New("pmv: corrupt poster")

// Entry is a movie recorded in a Catalog
type Entry struct {
	Name       string
	CRC        string
	FrameDelay uint16
	FrameCount uint16
	SoundFreq  uint16
	Width      int
	Height     int
}

// Catalog is a database of movies along with a poster frame for each
type Catalog struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCatalog opens or creates the catalog in file
func NewCatalog(file string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	// The scan workers all write, sqlite only allows one writer at a time
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS movie (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL UNIQUE, crc TEXT NOT NULL, delay INTEGER NOT NULL, count INTEGER NOT NULL, freq INTEGER NOT NULL, width INTEGER NOT NULL, height INTEGER NOT NULL, poster BLOB)"); err != nil {
		db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		db.Close()
		return nil, err
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}

	return &Catalog{
		db:  db,
		enc: enc,
		dec: dec,
	}, nil
}

// Close closes the catalog
func (c *Catalog) Close() error {
	c.dec.Close()
	if err := c.enc.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

// Add records a movie, replacing any existing entry with the same name
func (c *Catalog) Add(name, crc string, info *Info) error {
	var poster []byte
	if info.Poster != nil {
		poster = c.enc.EncodeAll(marshalPoster(info.Poster), nil)
	}

	if _, err := c.db.Exec("INSERT OR REPLACE INTO movie (name, crc, delay, count, freq, width, height, poster) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", name, crc, info.FrameDelay, info.FrameCount, info.SoundFreq, info.Width, info.Height, poster); err != nil {
		return err
	}
	return nil
}

// Find returns the entry for name, or nil if there isn't one
func (c *Catalog) Find(name string) (*Entry, error) {
	e := new(Entry)
	switch err := c.db.QueryRow("SELECT name, crc, delay, count, freq, width, height FROM movie WHERE name = ?", name).Scan(&e.Name, &e.CRC, &e.FrameDelay, &e.FrameCount, &e.SoundFreq, &e.Width, &e.Height); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		return e, nil
	default:
		return nil, err
	}
}

// List returns every entry ordered by name
func (c *Catalog) List() ([]Entry, error) {
	rows, err := c.db.Query("SELECT name, crc, delay, count, freq, width, height FROM movie ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.CRC, &e.FrameDelay, &e.FrameCount, &e.SoundFreq, &e.Width, &e.Height); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Poster returns the poster frame for name, or nil if there isn't one
func (c *Catalog) Poster(name string) (*stdimage.Paletted, error) {
	var width, height int
	var poster []byte
	switch err := c.db.QueryRow("SELECT width, height, poster FROM movie WHERE name = ?", name).Scan(&width, &height, &poster); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		if poster == nil {
			return nil, nil
		}
	default:
		return nil, err
	}

	b, err := c.dec.DecodeAll(poster, nil)
	if err != nil {
		return nil, err
	}

	return unmarshalPoster(b, width, height)
}

// A poster is stored as the raw palette followed by the color indices
func marshalPoster(m *stdimage.Paletted) []byte {
	s := image.FromPaletted(m)
	b := make([]byte, 0, palette.Size+len(s.Pix))
	b = append(b, palette.FromColors(m.Palette)[:]...)
	return append(b, s.Pix...)
}

func unmarshalPoster(b []byte, width, height int) (*stdimage.Paletted, error) {
	if width <= 0 || height <= 0 || len(b) != palette.Size+width*height {
		return nil, errPoster
	}

	var p palette.Palette
	copy(p[:], b)

	s := image.NewSurface(width, height)
	copy(s.Pix, b[palette.Size:])

	return s.Paletted(&p), nil
}
