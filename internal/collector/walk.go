package collector

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"

	"gamesync/internal/media"
)

var timestampToken = regexp.MustCompile(`\d{14}`)

// Console folder suffixes removed from Switch 2 game directory names. Longer
// variants come first so the shorter ones do not leave a dangling " Edition".
var switchSuffixes = []string{
	" – Nintendo Switch 2 Edition",
	" - Nintendo Switch 2 Edition",
	" – Nintendo Switch 2",
	" - Nintendo Switch 2",
	" – Switch 2 Edition",
	" - Switch 2 Edition",
}

// Walk discovers media by walking a directory tree copied off a console.
type Walk struct {
	Root   string
	Device media.Device
	// Exts is the lower-case extension allow-list, with dots.
	Exts map[string]bool
	// RequireTimestamp skips files without a YYYYMMDDhhmmss token. When
	// false the capture time falls back to EXIF (JPEG) and then mtime.
	RequireTimestamp bool
	// GameFromDir names the game after the first directory below Root.
	GameFromDir bool
	Logger      logrus.FieldLogger
}

// NewPS5 walks a PS5 capture export. File names must carry a timestamp.
func NewPS5(root string, logger logrus.FieldLogger) *Walk {
	return &Walk{
		Root:             root,
		Device:           media.PS5,
		Exts:             map[string]bool{".jpg": true, ".mp4": true, ".webm": true},
		RequireTimestamp: true,
		Logger:           logger,
	}
}

// NewSwitch2 walks a Switch 2 album organised in one folder per game.
func NewSwitch2(root string, logger logrus.FieldLogger) *Walk {
	return &Walk{
		Root:        root,
		Device:      media.Switch2,
		Exts:        map[string]bool{".jpg": true, ".jpeg": true, ".mp4": true, ".webm": true, ".mov": true},
		GameFromDir: true,
		Logger:      logger,
	}
}

// Discover walks Root, skipping hidden entries.
func (w *Walk) Discover(ctx context.Context) ([]media.Record, error) {
	if err := requireDir(w.Root); err != nil {
		return nil, err
	}

	var records []media.Record
	err := filepath.WalkDir(w.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.Logger.WithError(err).WithField("path", path).Warn("cannot read entry, skipping")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != w.Root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !w.Exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if rec, ok := w.record(path, d); ok {
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (w *Walk) record(path string, d fs.DirEntry) (media.Record, bool) {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil {
		return media.Record{}, false
	}
	identity := filepath.ToSlash(rel)
	log := w.Logger.WithField("identity", identity)

	kind, ok := media.KindFromPath(path)
	if !ok {
		return media.Record{}, false
	}

	captured, ok := timeFromName(d.Name())
	if !ok {
		if w.RequireTimestamp {
			log.Warn("no timestamp in file name, skipping")
			return media.Record{}, false
		}
		captured, ok = w.fallbackTime(path, kind, d)
		if !ok {
			log.Warn("cannot date file, skipping")
			return media.Record{}, false
		}
	}

	rec := media.Record{
		Identity:    identity,
		CaptureTime: captured.Unix(),
		SourcePath:  path,
		Kind:        kind,
		Device:      w.Device,
	}
	if w.GameFromDir {
		if parts := strings.Split(identity, "/"); len(parts) > 1 {
			rec.GameName = CleanGameName(parts[0])
		}
	}
	return rec, true
}

func (w *Walk) fallbackTime(path string, kind media.Kind, d fs.DirEntry) (time.Time, bool) {
	if kind == media.KindJPEG {
		if t, err := exifTime(path); err == nil {
			return t, true
		}
	}
	info, err := d.Info()
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// timeFromName extracts the first YYYYMMDDhhmmss token, read as local time.
func timeFromName(name string) (time.Time, bool) {
	tok := timestampToken.FindString(name)
	if tok == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("20060102150405", tok, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func exifTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}
	return x.DateTime()
}

// CleanGameName strips console suffixes from a Switch 2 album folder name.
func CleanGameName(name string) string {
	name = strings.TrimSpace(name)
	for _, s := range switchSuffixes {
		if strings.HasSuffix(name, s) {
			return strings.TrimSpace(strings.TrimSuffix(name, s))
		}
	}
	return name
}
