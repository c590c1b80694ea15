package tools

import (
	"os"
	"path/filepath"
	"time"

	"gamesync/internal/media"
)

// Default per-call timeouts.
const (
	DefaultExiftoolTimeout = 60 * time.Second
	DefaultFFmpegTimeout   = 120 * time.Second
	DefaultRemuxTimeout    = 5 * time.Minute
)

const (
	defaultExiftool = "exiftool"
	defaultFFmpeg   = "ffmpeg"
)

// ResolveExiftool returns the exiftool executable inside dir, or the bare
// command name when dir is empty or holds no executable exiftool.
func ResolveExiftool(dir string) string {
	if dir == "" {
		return defaultExiftool
	}
	for _, name := range []string{"exiftool", "exiftool.exe"} {
		full := filepath.Join(dir, name)
		if info, err := os.Stat(full); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return full
		}
	}
	return defaultExiftool
}

// ExiftoolImage tags a still image in place with EXIF dates, camera make and
// model, and the game name as ImageDescription.
type ExiftoolImage struct {
	Binary  string
	Target  string
	Meta    media.Metadata
	Timeout time.Duration
}

// Command builds the exiftool invocation.
func (b ExiftoolImage) Command() Command {
	dt := b.Meta.CaptureTime.Format("2006:01:02 15:04:05")
	args := []string{
		"-overwrite_original",
		"-DateTime=" + dt,
		"-DateTimeOriginal=" + dt,
		"-DateTimeDigitized=" + dt,
		"-Make=" + b.Meta.Device.Make,
		"-Model=" + b.Meta.Device.Model,
	}
	if b.Meta.GameName != "" {
		args = append(args, "-ImageDescription="+b.Meta.GameName)
	}
	args = append(args, b.Target)
	return Command{Name: or(b.Binary, defaultExiftool), Args: args, Timeout: orDur(b.Timeout, DefaultExiftoolTimeout)}
}

// ExiftoolVideo tags an MP4 in place. QuickTime dates are written in UTC.
type ExiftoolVideo struct {
	Binary  string
	Target  string
	Meta    media.Metadata
	Timeout time.Duration
}

// Command builds the exiftool invocation.
func (b ExiftoolVideo) Command() Command {
	dt := b.Meta.CaptureTime.UTC().Format("2006-01-02T15:04:05Z")
	args := []string{
		"-overwrite_original",
		"-CreateDate=" + dt,
		"-ModifyDate=" + dt,
		"-MediaCreateDate=" + dt,
		"-MediaModifyDate=" + dt,
		"-Make=" + b.Meta.Device.Make,
		"-Model=" + b.Meta.Device.Model,
		"-CameraModelName=" + b.Meta.Device.Model,
	}
	if g := b.Meta.GameName; g != "" {
		args = append(args, "-Description="+g, "-Title="+g, "-Comment="+g)
	}
	args = append(args, b.Target)
	return Command{Name: or(b.Binary, defaultExiftool), Args: args, Timeout: orDur(b.Timeout, DefaultExiftoolTimeout)}
}

// FFmpegMetadata copies Source to Target with container-level metadata. Used
// for WebM and MOV, where exiftool's write support is limited.
type FFmpegMetadata struct {
	Binary  string
	Source  string
	Target  string
	Meta    media.Metadata
	Timeout time.Duration
}

// Command builds the ffmpeg invocation.
func (b FFmpegMetadata) Command() Command {
	dt := b.Meta.CaptureTime.Format(time.RFC3339)
	args := []string{
		"-y",
		"-i", b.Source,
		"-c", "copy",
		"-metadata", "creation_time=" + dt,
		"-metadata", "date=" + dt,
		"-metadata", "make=" + b.Meta.Device.Make,
		"-metadata", "model=" + b.Meta.Device.Model,
		"-metadata", "manufacturer=" + b.Meta.Device.Make,
	}
	if g := b.Meta.GameName; g != "" {
		args = append(args,
			"-metadata", "title="+g,
			"-metadata", "comment="+g,
			"-metadata", "description="+g,
		)
	}
	args = append(args, b.Target)
	return Command{Name: or(b.Binary, defaultFFmpeg), Args: args, Timeout: orDur(b.Timeout, DefaultFFmpegTimeout)}
}

// FFmpegRemux stream-copies a video track and an optional audio track into
// one container without re-encoding.
type FFmpegRemux struct {
	Binary  string
	Video   string
	Audio   string // optional
	Output  string
	Timeout time.Duration
}

// Command builds the ffmpeg invocation. Probe limits are raised because
// concatenated fragmented MP4 tracks carry their index far from the start.
func (b FFmpegRemux) Command() Command {
	args := []string{
		"-y",
		"-analyzeduration", "100M",
		"-probesize", "50M",
		"-i", b.Video,
	}
	if b.Audio != "" {
		args = append(args, "-i", b.Audio)
	}
	args = append(args, "-c", "copy", b.Output)
	return Command{Name: or(b.Binary, defaultFFmpeg), Args: args, Timeout: orDur(b.Timeout, DefaultRemuxTimeout)}
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDur(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
