// Package gamesync copies game captures from consoles and Steam into an
// Immich photo library with their capture metadata intact.
//
// Overview
//
// A sync run has four stages:
//
//   - Discover: a collector lists the captures a platform currently stores
//   - Select: only captures newer than the tracking watermark are kept
//   - Embed: exiftool or ffmpeg writes capture time, device and game name
//     into a copy of each file (Steam clips are first rebuilt from their
//     DASH segments)
//   - Upload: the tagged copy is sent to Immich; a duplicate counts as done
//
// The watermark moves to the newest capture that succeeded and is saved once
// at the end of the run. A run that finds nothing new saves nothing.
//
// Quick Start
//
// Sync a PS5 capture export:
//
//	cfg, err := config.Load(config.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := logrus.New()
//	cur := cursor.Load(ctx, cursor.NewJSONStore(cfg.StatePath("ps5_tracker.json")), logger)
//	tagger := embed.New(tools.ExecRunner{}, embed.Options{Exiftool: "exiftool", FFmpeg: "ffmpeg"}, logger)
//	uploader := immich.New(immich.Config{ServerURL: cfg.Immich.ServerURL, APIKey: cfg.Immich.APIKey}, logger)
//	summary, err := engine.New(tagger, uploader).Run(ctx, collector.NewPS5(cfg.PS5.Source, logger), cur)
//
// Configuration
//
// Settings are read from, highest priority first:
//
//  1. Environment variables
//  2. Config file (gms.yaml in the working directory or ~/.config/gms)
//  3. A .env file in the working directory
//  4. Default values
//
// Environment variables:
//
//   - IMMICH_SERVER_URL, IMMICH_API_KEY: upload target
//   - EXIFTOOL_PATH: directory holding exiftool
//   - PS5_SOURCE_PATH, PS5_OUTPUT_PATH: PS5 capture export and output folder
//   - SWITCH2_SOURCE_PATH, SWITCH2_OUTPUT_PATH: Switch 2 album and output folder
//   - GMS_STATE_DIR: tracking files and the game name cache
//   - GMS_CURSOR_BACKEND: json or sqlite
//   - GMS_LOG_LEVEL, GMS_LOG_FILE: logging
//
// Error Handling
//
// Sentinel errors from the sub-packages are re-exported here:
//
//	if errors.Is(err, gamesync.ErrMissingCredentials) {
//		fmt.Println("set IMMICH_SERVER_URL and IMMICH_API_KEY")
//	}
//
//	var cmdErr *gamesync.CommandError
//	if errors.As(err, &cmdErr) {
//		fmt.Printf("%s exited %d: %s\n", cmdErr.Tool, cmdErr.ExitCode, cmdErr.Stderr)
//	}
//
// Dependencies
//
// exiftool and ffmpeg must be installed. exiftool is looked up in
// EXIFTOOL_PATH, then PATH.
package gamesync
