// Package media defines the value types shared by collectors, the embedder,
// the uploader and the sync engine.
package media

import (
	"path/filepath"
	"strings"
	"time"
)

// Kind identifies the container format of a discovered item.
type Kind string

const (
	KindJPEG Kind = "jpg"
	KindPNG  Kind = "png"
	KindMP4  Kind = "mp4"
	KindWebM Kind = "webm"
	KindMOV  Kind = "mov"
	// KindDASH is a segmented recording (init + chunk segments) that must be
	// reconstructed into an MP4 before it can be tagged.
	KindDASH Kind = "dash"
)

// KindFromPath maps a file extension to a Kind. The second return value is
// false for unsupported extensions.
func KindFromPath(path string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return KindJPEG, true
	case ".png":
		return KindPNG, true
	case ".mp4":
		return KindMP4, true
	case ".webm":
		return KindWebM, true
	case ".mov":
		return KindMOV, true
	}
	return "", false
}

// IsImage reports whether the kind is a still image.
func (k Kind) IsImage() bool {
	return k == KindJPEG || k == KindPNG
}

// Ext returns the file extension (with dot) used for tagged output.
func (k Kind) Ext() string {
	if k == KindDASH {
		return ".mp4"
	}
	return "." + string(k)
}

// Device describes the console that captured the media.
type Device struct {
	Make  string `json:"make"`
	Model string `json:"model"`
}

// ID returns the device identifier sent to the photo server, e.g.
// "valve-steam-deck".
func (d Device) ID() string {
	return strings.ToLower(strings.ReplaceAll(d.Make+"-"+d.Model, " ", "-"))
}

// Known capture devices.
var (
	SteamDeck = Device{Make: "Valve", Model: "Steam Deck"}
	PS5       = Device{Make: "Sony Interactive Entertainment", Model: "PlayStation 5"}
	Switch2   = Device{Make: "Nintendo", Model: "Nintendo Switch 2"}
)

// Record describes one discovered media item.
type Record struct {
	// Identity is stable and unique within one platform's media store
	// (file name, clip directory name or path relative to the source root).
	Identity string `json:"identity"`
	// CaptureTime is the capture timestamp in Unix seconds. It is the
	// ordering key for sync.
	CaptureTime int64 `json:"capture_time"`
	// SourcePath locates the raw media. For KindDASH it is the directory
	// holding the segment files.
	SourcePath string `json:"source_path"`
	Kind       Kind   `json:"kind"`
	Device     Device `json:"device"`
	GameID     string `json:"game_id,omitempty"`
	GameName   string `json:"game_name,omitempty"`
}

// Time returns CaptureTime as a local time.Time.
func (r Record) Time() time.Time {
	return time.Unix(r.CaptureTime, 0)
}

// Metadata is what gets written into a tagged copy of a media file.
type Metadata struct {
	CaptureTime time.Time
	Device      Device
	GameName    string
}

// MetadataFor builds the embed metadata for a record.
func MetadataFor(r Record) Metadata {
	return Metadata{
		CaptureTime: r.Time(),
		Device:      r.Device,
		GameName:    r.GameName,
	}
}
