package gamesync

import (
	"errors"

	"gamesync/internal/collector"
	"gamesync/internal/config"
	"gamesync/internal/cursor"
	"gamesync/internal/dash"
	"gamesync/internal/engine"
	"gamesync/internal/httpclient"
	"gamesync/internal/immich"
	"gamesync/internal/lock"
	"gamesync/internal/tools"
)

// Type aliases for convenient error handling.
type (
	// CommandError wraps a failed exiftool or ffmpeg invocation.
	CommandError = tools.CommandError
	// StoreError wraps a tracking store failure.
	StoreError = cursor.StoreError
	// HTTPError is a non-2xx answer from Immich or Steam.
	HTTPError = httpclient.HTTPError
	// RateLimitError is a 429 or 503 answer.
	RateLimitError = httpclient.RateLimitError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrSourceNotFound indicates a capture folder or index file is missing.
	ErrSourceNotFound = collector.ErrSourceNotFound
	// ErrNoSteamAccount indicates no Steam user could be detected.
	ErrNoSteamAccount = collector.ErrNoSteamAccount
	// ErrMissingCredentials indicates upload was requested without Immich settings.
	ErrMissingCredentials = config.ErrMissingCredentials
	// ErrLockTimeout indicates another process is syncing the same platform.
	ErrLockTimeout = lock.ErrLockTimeout
	// ErrDiscovery indicates a run stopped because discovery failed.
	ErrDiscovery = engine.ErrDiscovery

	// ErrToolNotInstalled indicates exiftool or ffmpeg was not found.
	ErrToolNotInstalled = tools.ErrToolNotInstalled
	// ErrToolTimeout indicates an external tool ran past its timeout.
	ErrToolTimeout = tools.ErrTimeout
	// ErrNoManifest indicates a clip without a session.mpd.
	ErrNoManifest = dash.ErrNoManifest
	// ErrBadResponse indicates Immich answered with something other than an upload result.
	ErrBadResponse = immich.ErrBadResponse

	// Tracking store errors
	// ErrNotFound indicates nothing has been tracked yet.
	ErrNotFound = cursor.ErrNotFound
	// ErrStorageCorrupt indicates an unreadable tracking file.
	ErrStorageCorrupt = cursor.ErrStorageCorrupt
)

// IsConfigError reports whether err stems from configuration rather than
// from the media or the network. The CLI exits nonzero for these.
func IsConfigError(err error) bool {
	for _, target := range []error{ErrSourceNotFound, ErrNoSteamAccount, ErrMissingCredentials, ErrLockTimeout} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
