// Package dash rebuilds a playable MP4 from a Steam game recording, which is
// stored as DASH segments: an init segment plus numbered chunk segments per
// stream (stream0 = video, stream1 = audio).
package dash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"gamesync/internal/tools"
)

// ManifestName is the DASH manifest Steam writes next to the segments.
const ManifestName = "session.mpd"

// Sentinel errors for clip reconstruction.
var (
	ErrNoManifest    = errors.New("dash: no session.mpd found")
	ErrNoVideoChunks = errors.New("dash: no video chunks found")
	ErrEmptyOutput   = errors.New("dash: remux produced no output")
)

const (
	videoInit   = "init-stream0.m4s"
	audioInit   = "init-stream1.m4s"
	videoPrefix = "chunk-stream0-"
	audioPrefix = "chunk-stream1-"
	segmentExt  = ".m4s"
)

// Plan lists the segment files of one recording, in playback order.
type Plan struct {
	VideoInit   string
	VideoChunks []string
	AudioInit   string
	AudioChunks []string
}

// VideoTrack returns the init segment (if any) followed by the video chunks.
func (p *Plan) VideoTrack() []string {
	return track(p.VideoInit, p.VideoChunks)
}

// AudioTrack returns the init segment (if any) followed by the audio chunks.
func (p *Plan) AudioTrack() []string {
	return track(p.AudioInit, p.AudioChunks)
}

// HasAudio reports whether the recording carries audio samples.
func (p *Plan) HasAudio() bool {
	return len(p.AudioChunks) > 0
}

func track(init string, chunks []string) []string {
	out := make([]string, 0, len(chunks)+1)
	if init != "" {
		out = append(out, init)
	}
	return append(out, chunks...)
}

// PlanDir partitions the segment files in dir by stream. Chunk names are
// zero-padded, so lexical order is playback order.
func PlanDir(dir string) (*Plan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read segment directory: %w", err)
	}

	p := &Plan{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		full := filepath.Join(dir, name)
		switch {
		case name == videoInit:
			p.VideoInit = full
		case name == audioInit:
			p.AudioInit = full
		case strings.HasPrefix(name, videoPrefix) && strings.HasSuffix(name, segmentExt):
			p.VideoChunks = append(p.VideoChunks, full)
		case strings.HasPrefix(name, audioPrefix) && strings.HasSuffix(name, segmentExt):
			p.AudioChunks = append(p.AudioChunks, full)
		}
	}
	sort.Strings(p.VideoChunks)
	sort.Strings(p.AudioChunks)

	if len(p.VideoChunks) == 0 {
		return nil, ErrNoVideoChunks
	}
	return p, nil
}

// Concat writes the files in order into dest, producing one contiguous
// fragmented MP4.
func Concat(paths []string, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := appendFile(out, p); err != nil {
			out.Close()
			return err
		}
	}
	return out.Close()
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// FindManifest returns the session.mpd inside clipDir/video/<session>/.
func FindManifest(clipDir string) (string, error) {
	videoDir := filepath.Join(clipDir, "video")
	entries, err := os.ReadDir(videoDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoManifest
		}
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		mpd := filepath.Join(videoDir, e.Name(), ManifestName)
		if info, err := os.Stat(mpd); err == nil && info.Mode().IsRegular() {
			return mpd, nil
		}
	}
	return "", ErrNoManifest
}

// Reconstructor turns a segment directory into one MP4 by concatenating each
// track and stream-copying the tracks into a single container.
type Reconstructor struct {
	Runner  tools.Runner
	FFmpeg  string
	Timeout time.Duration
	// TempDir holds the intermediate per-track files. Empty means os.TempDir.
	TempDir string
	Logger  logrus.FieldLogger
}

// Reconstruct writes the playable recording from segmentDir to output. A
// missing audio stream yields a video-only file.
func (r *Reconstructor) Reconstruct(ctx context.Context, segmentDir, output string) error {
	plan, err := PlanDir(segmentDir)
	if err != nil {
		return err
	}

	videoPath, err := r.tempTrack("v")
	if err != nil {
		return err
	}
	defer os.Remove(videoPath)
	if err := Concat(plan.VideoTrack(), videoPath); err != nil {
		return fmt.Errorf("concat video track: %w", err)
	}

	remux := tools.FFmpegRemux{Binary: r.FFmpeg, Video: videoPath, Output: output, Timeout: r.Timeout}
	if plan.HasAudio() {
		audioPath, err := r.tempTrack("a")
		if err != nil {
			return err
		}
		defer os.Remove(audioPath)
		if err := Concat(plan.AudioTrack(), audioPath); err != nil {
			return fmt.Errorf("concat audio track: %w", err)
		}
		remux.Audio = audioPath
	}

	if _, err := r.Runner.Run(ctx, remux.Command()); err != nil {
		return fmt.Errorf("remux: %w", err)
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return ErrEmptyOutput
	}
	if r.Logger != nil {
		r.Logger.WithFields(logrus.Fields{
			"video_chunks": len(plan.VideoChunks),
			"audio_chunks": len(plan.AudioChunks),
			"size":         humanize.Bytes(uint64(info.Size())),
		}).Debug("clip reconstructed")
	}
	return nil
}

func (r *Reconstructor) tempTrack(suffix string) (string, error) {
	f, err := os.CreateTemp(r.TempDir, "gms-track-*_"+suffix+".mp4")
	if err != nil {
		return "", fmt.Errorf("create track file: %w", err)
	}
	name := f.Name()
	return name, f.Close()
}
