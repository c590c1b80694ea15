package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"gamesync/internal/cursor"
)

// CacheFileName is the default name of the persisted app name cache.
const CacheFileName = "steam_app_cache.json"

// Cache maps Steam app IDs to game names. It is loaded once at start and
// saved once at the end of a run; the file is a flat JSON object
// {"1145360": "Hades", ...}.
type Cache struct {
	path  string
	mu    sync.Mutex
	names map[string]string
	dirty bool
}

// NewCache returns an empty in-memory cache. Save is a no-op unless a path
// is set via LoadCache.
func NewCache() *Cache {
	return &Cache{names: make(map[string]string)}
}

// LoadCache reads the cache at path. A missing or unreadable file yields an
// empty cache; non-string values are dropped.
func LoadCache(path string, logger logrus.FieldLogger) *Cache {
	c := NewCache()
	c.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WithError(err).WithField("path", path).Warn("cannot read name cache, starting empty")
		}
		return c
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.WithField("path", path).Warn("name cache is corrupt, starting empty")
		return c
	}
	for id, v := range raw {
		if name, ok := v.(string); ok && strings.TrimSpace(name) != "" {
			c.names[id] = strings.TrimSpace(name)
		}
	}
	return c
}

// Get returns the cached name for appID.
func (c *Cache) Get(appID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.names[appID]
	return name, ok
}

// Put stores name for appID.
func (c *Cache) Put(appID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.names[appID] == name {
		return
	}
	c.names[appID] = name
	c.dirty = true
}

// Len returns the number of cached names.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}

// Save writes the cache if it changed since it was loaded. Keys are written
// in sorted order.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" || !c.dirty {
		return nil
	}

	err := cursor.WriteFile(c.path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(c.names)
	})
	if err != nil {
		return fmt.Errorf("save name cache: %w", err)
	}
	c.dirty = false
	return nil
}
