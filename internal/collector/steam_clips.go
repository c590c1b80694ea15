package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"gamesync/internal/dash"
	"gamesync/internal/media"
)

var clipDirPattern = regexp.MustCompile(`^clip_(\d+)_(\d{8})_(\d{6})$`)

// SteamClips lists game recordings saved as clips. Each clip directory holds
// a DASH session under video/<session>/.
type SteamClips struct {
	Paths  SteamPaths
	Logger logrus.FieldLogger
}

// NewSteamClips returns a collector for the given account.
func NewSteamClips(paths SteamPaths, logger logrus.FieldLogger) *SteamClips {
	return &SteamClips{Paths: paths, Logger: logger}
}

// Discover reports one KindDASH record per clip directory. A clip whose
// manifest is missing is still reported with the clip directory as its
// source so that it fails at embed time and stays eligible for later runs.
func (s *SteamClips) Discover(ctx context.Context) ([]media.Record, error) {
	dir := s.Paths.ClipsDir()
	if err := requireDir(dir); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var records []media.Record
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := clipDirPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		clipDir := filepath.Join(dir, e.Name())
		log := s.Logger.WithField("identity", e.Name())

		captured, err := time.ParseInLocation("20060102150405", m[2]+m[3], time.Local)
		if err != nil {
			info, serr := e.Info()
			if serr != nil {
				log.WithError(serr).Warn("cannot date clip, skipping")
				continue
			}
			captured = info.ModTime()
		}

		source := clipDir
		if mpd, err := dash.FindManifest(clipDir); err == nil {
			source = filepath.Dir(mpd)
		} else if errors.Is(err, dash.ErrNoManifest) {
			log.Warn("clip has no session.mpd")
		} else {
			log.WithError(err).Warn("cannot inspect clip, skipping")
			continue
		}

		records = append(records, media.Record{
			Identity:    e.Name(),
			CaptureTime: captured.Unix(),
			SourcePath:  source,
			Kind:        media.KindDASH,
			Device:      media.SteamDeck,
			GameID:      m[1],
		})
	}
	return records, nil
}
