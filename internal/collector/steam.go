package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/andygrunwald/vdf"
)

// ErrNoSteamAccount is returned when loginusers.vdf names no recent user.
var ErrNoSteamAccount = errors.New("no recent steam account in loginusers.vdf")

// DefaultSteamDir returns the usual Steam install directory for this OS.
func DefaultSteamDir() string {
	if runtime.GOOS == "windows" {
		return "C:/Program Files (x86)/Steam/"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/Steam"
	}
	return filepath.Join(home, ".local", "share", "Steam")
}

// SteamPaths locates one account's data under a Steam install.
type SteamPaths struct {
	Root      string
	AccountID string
}

// UserData returns userdata/<account>.
func (p SteamPaths) UserData() string {
	return filepath.Join(p.Root, "userdata", p.AccountID)
}

// ScreenshotsIndex returns the screenshots.vdf path.
func (p SteamPaths) ScreenshotsIndex() string {
	return filepath.Join(p.UserData(), "760", "screenshots.vdf")
}

// RemoteDir is the directory the index's filenames are relative to.
func (p SteamPaths) RemoteDir() string {
	return filepath.Join(p.UserData(), "760", "remote")
}

// ClipsDir holds one clip_<appid>_<date>_<time> directory per recording.
func (p SteamPaths) ClipsDir() string {
	return filepath.Join(p.UserData(), "gamerecordings", "clips")
}

// DetectAccountID reads config/loginusers.vdf and returns the 32-bit account
// id of the most recently logged-in user.
func DetectAccountID(steamDir string) (string, error) {
	path := filepath.Join(steamDir, "config", "loginusers.vdf")
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return "", err
	}
	defer f.Close()

	doc, err := vdf.NewParser(f).Parse()
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}

	users, _ := lookup(doc, "users").(map[string]interface{})
	for id64, v := range users {
		user, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		recent, _ := lookup(user, "MostRecent").(string)
		if recent != "1" {
			continue
		}
		steamID, err := strconv.ParseUint(id64, 10, 64)
		if err != nil {
			return "", fmt.Errorf("bad steam id %q: %w", id64, err)
		}
		return strconv.FormatUint(steamID&0xFFFFFFFF, 10), nil
	}
	return "", ErrNoSteamAccount
}

// lookup finds key in m, ignoring case. Steam has written both "MostRecent"
// and "mostrecent" over the years.
func lookup(m map[string]interface{}, key string) interface{} {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}
