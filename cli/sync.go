package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gamesync/internal/collector"
	"gamesync/internal/cursor"
	"gamesync/internal/embed"
	"gamesync/internal/engine"
	"gamesync/internal/immich"
	"gamesync/internal/lock"
	"gamesync/internal/logging"
	"gamesync/internal/resolver"
	"gamesync/internal/tools"
)

// errNothingToDo rejects a run that would neither upload nor keep files.
var errNothingToDo = errors.New("Nothing to do: --no-upload without --output")

// lockWait is how long a run waits for another gms process on the same
// tracking file.
var lockWait = 2 * time.Second

// platform describes one sync target.
type platform struct {
	name    string
	short   string
	label   string
	tracker string
	steam   bool

	// mirror keeps the source folder layout in the output folder.
	mirror bool
}

var platforms = map[string]platform{
	"steam": {
		name: "steam", short: "Sync Steam screenshots",
		label: "Screenshots", tracker: "upload_tracker.json", steam: true,
	},
	"steam-clips": {
		name: "steam-clips", short: "Sync Steam game recording clips",
		label: "Clips", tracker: "clips_tracker.json", steam: true,
	},
	"ps5": {
		name: "ps5", short: "Sync a PS5 capture export",
		label: "PS5", tracker: "ps5_tracker.json", mirror: true,
	},
	"switch": {
		name: "switch", short: "Sync a Nintendo Switch 2 album",
		label: "Switch 2", tracker: "switch_tracker.json",
	},
}

var platformOrder = []string{"steam", "steam-clips", "ps5", "switch"}

func lookupPlatform(name string) (platform, error) {
	p, ok := platforms[name]
	if !ok {
		return platform{}, fmt.Errorf("unknown platform %q (use steam, steam-clips, ps5 or switch)", name)
	}
	return p, nil
}

// syncFlags are the per-run options shared by sync and watch commands.
type syncFlags struct {
	noUpload bool
	output   string
	source   string
}

func (f *syncFlags) register(cmd *cobra.Command, p platform) {
	cmd.Flags().BoolVar(&f.noUpload, "no-upload", false, "tag files without uploading them")
	cmd.Flags().StringVar(&f.output, "output", "", "keep tagged files in DIR/<game>/")
	if p.name == "ps5" {
		cmd.Flags().StringVar(&f.source, "source", "", "PS5 capture folder (default PS5_SOURCE_PATH)")
	}
}

func (a *app) syncCmd(p platform) *cobra.Command {
	var flags syncFlags
	cmd := &cobra.Command{
		Use:   p.name,
		Short: p.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.source = args[0]
			}
			return a.syncOnce(context.WithoutCancel(cmd.Context()), p, flags)
		},
	}
	if p.name == "switch" {
		cmd.Use = "switch [SOURCE]"
		cmd.Args = cobra.MaximumNArgs(1)
	}
	flags.register(cmd, p)
	return cmd
}

// target is a resolved platform source: what to discover and where tagged
// files go.
type target struct {
	collector collector.Collector
	// roots are the directories watch mode observes.
	roots  []string
	output string
}

func (a *app) target(p platform, flags syncFlags) (*target, error) {
	cfg := a.cfg
	log := a.logger.WithField("platform", p.name)

	if p.steam {
		steamDir := cfg.Steam.Dir
		if steamDir == "" {
			steamDir = collector.DefaultSteamDir()
		}
		account := cfg.Steam.AccountID
		if account == "" {
			id, err := collector.DetectAccountID(steamDir)
			if err != nil {
				return nil, fmt.Errorf("steam account: %w", err)
			}
			account = id
		}
		paths := collector.SteamPaths{Root: steamDir, AccountID: account}
		t := &target{output: firstNonEmpty(flags.output, cfg.Steam.Output)}
		if p.name == "steam" {
			t.collector = collector.NewSteamScreenshots(paths, log)
			t.roots = []string{filepath.Dir(paths.ScreenshotsIndex())}
		} else {
			t.collector = collector.NewSteamClips(paths, log)
			t.roots = []string{paths.ClipsDir()}
		}
		return t, nil
	}

	var source, output string
	switch p.name {
	case "ps5":
		source = firstNonEmpty(flags.source, cfg.PS5.Source)
		output = firstNonEmpty(flags.output, cfg.PS5.Output)
	case "switch":
		source = firstNonEmpty(flags.source, cfg.Switch2.Source)
		output = firstNonEmpty(flags.output, cfg.Switch2.Output)
	}
	if source == "" {
		return nil, fmt.Errorf("%s source folder not set", p.name)
	}
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", collector.ErrSourceNotFound, source)
	}

	t := &target{roots: []string{source}, output: output}
	if p.name == "ps5" {
		t.collector = collector.NewPS5(source, log)
	} else {
		t.collector = collector.NewSwitch2(source, log)
	}
	return t, nil
}

// checkRun rejects configurations that cannot produce a useful run.
func (a *app) checkRun(t *target, flags syncFlags) error {
	if flags.noUpload && t.output == "" {
		return errNothingToDo
	}
	if !flags.noUpload {
		return a.cfg.RequireUpload()
	}
	return nil
}

// syncOnce performs one locked run for p and prints progress. Configuration
// problems are returned; item failures and persistence failures are only
// reported.
func (a *app) syncOnce(ctx context.Context, p platform, flags syncFlags) error {
	t, err := a.target(p, flags)
	if err != nil {
		return err
	}
	if err := a.checkRun(t, flags); err != nil {
		return err
	}
	return a.runTarget(ctx, p, t, flags)
}

func (a *app) runTarget(ctx context.Context, p platform, t *target, flags syncFlags) error {
	cfg := a.cfg
	log := a.logger.WithField("platform", p.name)

	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	fl := lock.New(cfg.StatePath(p.tracker))
	if err := fl.Lock(ctx, lockWait); err != nil {
		return fmt.Errorf("%s: %w", fl.Path(), err)
	}
	defer fl.Unlock()

	store, closeStore, err := a.openStore(p)
	if err != nil {
		return err
	}
	defer closeStore()
	cur := cursor.Load(ctx, store, log)

	embedder := embed.New(a.runner, embed.Options{
		Exiftool:        tools.ResolveExiftool(cfg.Tools.ExiftoolPath),
		FFmpeg:          cfg.Tools.FFmpegPath,
		OutputDir:       t.output,
		MirrorSource:    p.mirror,
		TempDir:         cfg.Tools.TempDir,
		ExiftoolTimeout: cfg.Tools.ExiftoolTimeout,
		FFmpegTimeout:   cfg.Tools.FFmpegTimeout,
		RemuxTimeout:    cfg.Tools.RemuxTimeout,
	}, log)

	var uploader engine.Uploader
	if !flags.noUpload {
		client := immich.New(immich.Config{
			ServerURL: cfg.Immich.ServerURL,
			APIKey:    cfg.Immich.APIKey,
			Timeout:   cfg.Immich.Timeout,
		}, log)
		defer client.Close()
		uploader = client
	}

	progress := logging.NewProgress(a.stdout, p.label)
	opts := []engine.Option{engine.WithLogger(log), engine.WithReporter(progress.Item)}

	var names *resolver.Cache
	if p.steam && cfg.Steam.ResolveNames {
		names = resolver.LoadCache(cfg.StatePath(resolver.CacheFileName), log)
		opts = append(opts, engine.WithResolver(resolver.New(names, resolver.Options{RPS: cfg.Steam.ResolverRPS}, log)))
	}

	summary, err := engine.New(embedder, uploader, opts...).Run(ctx, t.collector, cur)
	if names != nil {
		if serr := names.Save(); serr != nil {
			log.WithError(serr).Warn("could not save game name cache")
		}
	}
	if errors.Is(err, engine.ErrDiscovery) {
		return err
	}
	if err != nil {
		log.WithError(err).Error("run completed but tracking state was not saved")
	}

	if summary.Total == 0 {
		progress.Nothing()
	} else {
		progress.Summary(summary)
	}
	log.WithFields(logrus.Fields{"run_id": summary.RunID, "output": t.output}).Debug("run finished")
	return nil
}

// openStore opens the tracking store for p. The returned func releases it.
func (a *app) openStore(p platform) (cursor.Store, func(), error) {
	if a.cfg.Cursor.Backend == "sqlite" {
		if err := os.MkdirAll(a.cfg.StateDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create state dir: %w", err)
		}
		db, err := cursor.OpenSQLite(a.cfg.StatePath("gms.db"))
		if err != nil {
			return nil, nil, err
		}
		return db.Store(p.tracker), func() { db.Close() }, nil
	}
	return cursor.NewJSONStore(a.cfg.StatePath(p.tracker)), func() {}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
