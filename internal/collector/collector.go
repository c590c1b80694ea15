// Package collector discovers raw game media on disk and describes each item
// as a media.Record. Collectors are side-effect free: they never copy, tag or
// move files.
package collector

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gamesync/internal/media"
)

// ErrSourceNotFound is returned when a collector's source root (or index
// file) does not exist. Callers treat it as a configuration error.
var ErrSourceNotFound = errors.New("media source not found")

// Collector enumerates the media items a platform currently stores. Entries
// that cannot be interpreted are skipped with a warning rather than failing
// the whole discovery.
type Collector interface {
	Discover(ctx context.Context) ([]media.Record, error)
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrSourceNotFound, path)
	}
	return nil
}
