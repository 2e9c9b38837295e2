package pmv

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	scanWorkers = 4
	movieExt    = ".pmv"
)

func findMovies(ctx context.Context, base string) (<-chan string, <-chan error, error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.Walk(base, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories, otherwise we end up fighting with things like Spotlight, etc.
			if file != base && info.Name()[0] == '.' {
				if info.Mode().IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			// Ignore anything that isn't a normal file
			if !info.Mode().IsRegular() {
				return nil
			}

			if !strings.EqualFold(filepath.Ext(file), movieExt) {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc, nil
}

func movieWorker(ctx context.Context, base string, in <-chan string, catalog *Catalog, logger *log.Logger) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			crc, info, err := crcFile(file)
			if err != nil {
				// Carry on with the rest of the movies
				logger.Printf("Skipping \"%s\": %v\n", file, err)
				continue
			}

			name, err := filepath.Rel(base, file)
			if err != nil {
				errc <- err
				return
			}

			if err := catalog.Add(filepath.ToSlash(name), crc, info); err != nil {
				errc <- err
				return
			}

			logger.Printf("Added \"%s\", %d frames, with CRC \"%s\"\n", name, info.FrameCount, crc)
		}
	}()
	return errc, nil
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Scan walks path adding every movie found to catalog. Movies are named by
// their path relative to path.
func Scan(ctx context.Context, path string, catalog *Catalog, logger *log.Logger) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	var errcList []<-chan error

	files, errc, err := findMovies(ctx, dir)
	if err != nil {
		return err
	}
	errcList = append(errcList, errc)

	for i := 0; i < scanWorkers; i++ {
		errc, err := movieWorker(ctx, dir, files, catalog, logger)
		if err != nil {
			return err
		}
		errcList = append(errcList, errc)
	}

	return waitForPipeline(errcList...)
}
