// Package watch re-runs a sync whenever the watched media folders change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is the quiet period required after the last change.
const DefaultDebounce = 5 * time.Second

// RunFunc performs one sync. Errors are logged and do not stop watching.
type RunFunc func(ctx context.Context) error

// Watcher triggers runs on filesystem changes below a set of roots.
// Directories created after start are picked up.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   logrus.FieldLogger
}

// New watches roots and every directory below them.
func New(roots []string, debounce time.Duration, logger logrus.FieldLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{fsw: fsw, debounce: debounce, logger: logger}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addTree watches dir and its subdirectories. Hidden directories are skipped.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Watched returns the directories currently watched.
func (w *Watcher) Watched() []string {
	return w.fsw.WatchList()
}

// Run calls fn once, then again after every burst of changes once the
// debounce period has passed without further events. Runs never overlap.
// Run returns nil when ctx is cancelled and closes the watcher.
func (w *Watcher) Run(ctx context.Context, fn RunFunc) error {
	defer w.fsw.Close()

	w.run(ctx, fn, "initial")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.WithError(err).Warn("could not watch new directory")
					}
				}
			}
			w.logger.WithFields(logrus.Fields{"path": event.Name, "op": event.Op.String()}).Debug("change")
			timer.Reset(w.debounce)
			pending = timer.C

		case <-pending:
			pending = nil
			w.run(ctx, fn, "change")

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) run(ctx context.Context, fn RunFunc, reason string) {
	log := w.logger.WithField("trigger", reason)
	log.Debug("running sync")
	if err := fn(ctx); err != nil {
		log.WithError(err).Error("sync failed")
	}
}

// relevant drops attribute-only changes and files gms itself writes.
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	name := filepath.Base(event.Name)
	return !strings.HasPrefix(name, ".") && !strings.HasPrefix(name, "gms-")
}
