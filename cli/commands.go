package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gamesync/internal/cursor"
	"gamesync/internal/resolver"
	"gamesync/internal/watch"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		flags    syncFlags
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <platform>",
		Short: "Sync now, then again whenever new captures appear",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := lookupPlatform(args[0])
			if err != nil {
				return err
			}
			t, err := a.target(p, flags)
			if err != nil {
				return err
			}
			if err := a.checkRun(t, flags); err != nil {
				return err
			}
			if !cmd.Flags().Changed("debounce") {
				debounce = a.cfg.Watch.Debounce
			}

			log := a.logger.WithField("platform", p.name)
			w, err := watch.New(t.roots, debounce, log)
			if err != nil {
				return err
			}
			log.WithField("roots", t.roots).Info("watching for new captures")
			return w.Run(cmd.Context(), func(ctx context.Context) error {
				return a.runTarget(context.WithoutCancel(ctx), p, t, flags)
			})
		},
	}
	cmd.Flags().BoolVar(&flags.noUpload, "no-upload", false, "tag files without uploading them")
	cmd.Flags().StringVar(&flags.output, "output", "", "keep tagged files in DIR/<game>/")
	cmd.Flags().StringVar(&flags.source, "source", "", "capture folder for ps5 or switch")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a re-run")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <platform>",
		Short: "Show the sync watermark and processed count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := lookupPlatform(args[0])
			if err != nil {
				return err
			}
			store, closeStore, err := a.openStore(p)
			if err != nil {
				return err
			}
			defer closeStore()

			cur := cursor.Load(cmd.Context(), store, a.logger.WithField("platform", p.name))
			processed := cur.ProcessedLog()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Platform:   %s\n", p.name)
			if cur.Watermark() == 0 {
				fmt.Fprintf(out, "Watermark:  none\n")
			} else {
				wm := time.Unix(cur.Watermark(), 0)
				fmt.Fprintf(out, "Watermark:  %s (%s)\n", wm.Format(time.RFC3339), humanize.Time(wm))
			}
			fmt.Fprintf(out, "Processed:  %s\n", humanize.Comma(int64(len(processed))))
			if n := len(processed); n > 0 {
				last := processed[n-1]
				if last.ProcessedAt.IsZero() {
					fmt.Fprintf(out, "Last item:  %s\n", last.Identity)
				} else {
					fmt.Fprintf(out, "Last item:  %s (synced %s)\n", last.Identity, humanize.Time(last.ProcessedAt))
				}
			}
			return nil
		},
	}
}

func (a *app) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <appid>",
		Short: "Look up a Steam game name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID := args[0]
			log := a.logger.WithField("app_id", appID)

			if err := os.MkdirAll(a.cfg.StateDir, 0755); err != nil {
				return fmt.Errorf("create state dir: %w", err)
			}
			cache := resolver.LoadCache(a.cfg.StatePath(resolver.CacheFileName), log)
			r := resolver.New(cache, resolver.Options{RPS: a.cfg.Steam.ResolverRPS}, log)

			result := struct {
				AppID string `json:"app_id"`
				Name  string `json:"name"`
			}{AppID: appID}

			name, err := r.Resolve(cmd.Context(), appID)
			if err != nil {
				log.WithError(err).Warn("game name not found")
			} else {
				result.Name = name
			}
			if err := cache.Save(); err != nil {
				log.WithError(err).Warn("could not save game name cache")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(result)
		},
	}
}
