// Package embed writes capture metadata into a copy of a media file using
// exiftool or ffmpeg. The source file is never modified.
package embed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"gamesync/internal/dash"
	"gamesync/internal/media"
	"gamesync/internal/tools"
)

// ErrUnsupportedKind is returned for records whose kind has no tagging path.
var ErrUnsupportedKind = errors.New("unsupported media kind")

// UnknownGame is the output folder for records without a game name.
const UnknownGame = "Unknown"

// Result describes a tagged file. Temporary files belong to the caller, who
// removes them once the item is done; files in the output folder are kept.
type Result struct {
	Path      string
	Temporary bool
}

// Embedder produces a tagged copy of a record's media.
type Embedder interface {
	Embed(ctx context.Context, rec media.Record) (*Result, error)
}

// Options configures a Tagger.
type Options struct {
	Exiftool string
	FFmpeg   string

	// OutputDir, when set, receives tagged files as <game>/<name>
	// (or as <identity> with MirrorSource).
	// Otherwise tagged files are written to TempDir.
	OutputDir string
	TempDir   string

	// MirrorSource lays the output folder out like the source tree,
	// <OutputDir>/<identity>, for records whose identity is a relative path.
	MirrorSource bool

	ExiftoolTimeout time.Duration
	FFmpegTimeout   time.Duration
	RemuxTimeout    time.Duration
}

// Tagger is the exiftool/ffmpeg backed Embedder.
type Tagger struct {
	runner tools.Runner
	opts   Options
	dash   *dash.Reconstructor
	logger logrus.FieldLogger
}

// New creates a Tagger that runs external tools through runner.
func New(runner tools.Runner, opts Options, logger logrus.FieldLogger) *Tagger {
	return &Tagger{
		runner: runner,
		opts:   opts,
		dash: &dash.Reconstructor{
			Runner:  runner,
			FFmpeg:  opts.FFmpeg,
			Timeout: opts.RemuxTimeout,
			TempDir: opts.TempDir,
			Logger:  logger,
		},
		logger: logger,
	}
}

// Embed tags rec and returns where the tagged file was written. On failure
// nothing is left behind.
func (t *Tagger) Embed(ctx context.Context, rec media.Record) (*Result, error) {
	switch rec.Kind {
	case media.KindJPEG, media.KindPNG, media.KindMP4, media.KindWebM, media.KindMOV, media.KindDASH:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, rec.Kind)
	}

	res, err := t.destination(rec)
	if err != nil {
		return nil, err
	}
	if err := t.tag(ctx, rec, res.Path); err != nil {
		os.Remove(res.Path)
		return nil, err
	}

	ts := rec.Time()
	if err := os.Chtimes(res.Path, ts, ts); err != nil {
		t.logger.WithError(err).WithField("path", res.Path).Warn("cannot set file times")
	}
	return res, nil
}

func (t *Tagger) tag(ctx context.Context, rec media.Record, dest string) error {
	meta := media.MetadataFor(rec)

	switch rec.Kind {
	case media.KindJPEG, media.KindPNG:
		if err := copyFile(rec.SourcePath, dest); err != nil {
			return err
		}
		return t.run(ctx, tools.ExiftoolImage{
			Binary: t.opts.Exiftool, Target: dest, Meta: meta, Timeout: t.opts.ExiftoolTimeout,
		}.Command())

	case media.KindMP4:
		if err := copyFile(rec.SourcePath, dest); err != nil {
			return err
		}
		return t.tagVideo(ctx, dest, meta)

	case media.KindWebM, media.KindMOV:
		return t.run(ctx, tools.FFmpegMetadata{
			Binary: t.opts.FFmpeg, Source: rec.SourcePath, Target: dest, Meta: meta, Timeout: t.opts.FFmpegTimeout,
		}.Command())

	case media.KindDASH:
		if _, err := os.Stat(filepath.Join(rec.SourcePath, dash.ManifestName)); err != nil {
			return dash.ErrNoManifest
		}
		if err := t.dash.Reconstruct(ctx, rec.SourcePath, dest); err != nil {
			return err
		}
		return t.tagVideo(ctx, dest, meta)
	}
	return ErrUnsupportedKind
}

func (t *Tagger) tagVideo(ctx context.Context, dest string, meta media.Metadata) error {
	return t.run(ctx, tools.ExiftoolVideo{
		Binary: t.opts.Exiftool, Target: dest, Meta: meta, Timeout: t.opts.ExiftoolTimeout,
	}.Command())
}

func (t *Tagger) run(ctx context.Context, cmd tools.Command) error {
	_, err := t.runner.Run(ctx, cmd)
	return err
}

// destination picks the output path for rec, creating folders as needed.
func (t *Tagger) destination(rec media.Record) (*Result, error) {
	name := outputName(rec)
	if t.opts.OutputDir == "" {
		f, err := os.CreateTemp(t.opts.TempDir, "gms-*-"+name)
		if err != nil {
			return nil, fmt.Errorf("create temp file: %w", err)
		}
		path := f.Name()
		if err := f.Close(); err != nil {
			return nil, err
		}
		return &Result{Path: path, Temporary: true}, nil
	}

	var path string
	if t.opts.MirrorSource {
		rel := filepath.FromSlash(rec.Identity)
		if !filepath.IsLocal(rel) {
			return nil, fmt.Errorf("identity %q escapes the output folder", rec.Identity)
		}
		path = filepath.Join(t.opts.OutputDir, rel)
	} else {
		game := rec.GameName
		if game == "" {
			game = UnknownGame
		}
		path = filepath.Join(t.opts.OutputDir, safeName(game), name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}
	return &Result{Path: path}, nil
}

// outputName is the file name of the tagged copy. Clips are named after
// their directory.
func outputName(rec media.Record) string {
	if rec.Kind == media.KindDASH {
		return safeName(rec.Identity) + rec.Kind.Ext()
	}
	return filepath.Base(rec.SourcePath)
}

var unsafeChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

func safeName(s string) string {
	return unsafeChars.Replace(s)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}
