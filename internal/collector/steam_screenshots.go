package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andygrunwald/vdf"
	"github.com/sirupsen/logrus"

	"gamesync/internal/media"
)

// SteamScreenshots reads the screenshots.vdf index Steam keeps per account.
type SteamScreenshots struct {
	Paths  SteamPaths
	Logger logrus.FieldLogger
}

// NewSteamScreenshots returns a collector for the given account.
func NewSteamScreenshots(paths SteamPaths, logger logrus.FieldLogger) *SteamScreenshots {
	return &SteamScreenshots{Paths: paths, Logger: logger}
}

// Discover lists every screenshot in the index. The index layout is
// screenshots → appid → screenshot id → {creation, filename}.
func (s *SteamScreenshots) Discover(ctx context.Context) ([]media.Record, error) {
	index := s.Paths.ScreenshotsIndex()
	f, err := os.Open(index)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, index)
		}
		return nil, err
	}
	defer f.Close()

	// A damaged index yields an empty batch. Steam rewrites it on the next
	// screenshot, and the cursor stays where it is.
	doc, err := vdf.NewParser(f).Parse()
	if err != nil {
		s.Logger.WithError(err).WithField("path", index).Warn("cannot parse screenshots.vdf, nothing to sync")
		return nil, nil
	}
	root, ok := lookup(doc, "screenshots").(map[string]interface{})
	if !ok {
		s.Logger.WithField("path", index).Warn("screenshots.vdf has no screenshots section")
		return nil, nil
	}

	remote := s.Paths.RemoteDir()
	var records []media.Record
	for appID, v := range root {
		shots, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		for shotID, sv := range shots {
			shot, ok := sv.(map[string]interface{})
			if !ok {
				continue
			}
			log := s.Logger.WithFields(logrus.Fields{"app_id": appID, "screenshot_id": shotID})

			filename, _ := shot["filename"].(string)
			creation, _ := shot["creation"].(string)
			if filename == "" {
				log.Warn("screenshot entry without filename, skipping")
				continue
			}
			ts, err := strconv.ParseInt(creation, 10, 64)
			if err != nil {
				log.WithField("creation", creation).Warn("screenshot entry with bad creation time, skipping")
				continue
			}
			kind, ok := media.KindFromPath(filename)
			if !ok {
				log.WithField("identity", filename).Warn("unsupported screenshot format, skipping")
				continue
			}

			records = append(records, media.Record{
				Identity:    filename,
				CaptureTime: ts,
				SourcePath:  filepath.Join(remote, filepath.FromSlash(filename)),
				Kind:        kind,
				Device:      media.SteamDeck,
				GameID:      appID,
			})
		}
	}
	return records, nil
}
