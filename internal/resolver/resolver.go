// Package resolver turns Steam app IDs into game names. It asks the Steam
// Store API first and falls back to scraping the SteamDB app page. Results
// are kept in an explicit Cache the caller loads and saves.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"gamesync/internal/httpclient"
)

// ErrNotFound is returned when no source knows the app.
var ErrNotFound = errors.New("game name not found")

const (
	DefaultStoreURL   = "https://store.steampowered.com/api/appdetails"
	DefaultSteamDBURL = "https://steamdb.info/app/"
	DefaultTimeout    = 5 * time.Second

	// recentSize bounds the per-process memo of lookups, misses included.
	recentSize = 1024
)

// browserHeaders are sent to SteamDB, which rejects obvious bots.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://steamdb.info/",
}

// Options configures a Resolver.
type Options struct {
	StoreURL   string
	SteamDBURL string
	Timeout    time.Duration
	// RPS limits requests per host (0 = unlimited).
	RPS float64
}

// Resolver looks up game names.
type Resolver struct {
	http       *httpclient.Client
	cache      *Cache
	recent     *lru.Cache[string, string]
	storeURL   string
	steamDBURL string
	logger     logrus.FieldLogger
}

// New creates a Resolver backed by cache. A nil cache means in-memory only.
func New(cache *Cache, opts Options, logger logrus.FieldLogger) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	if opts.StoreURL == "" {
		opts.StoreURL = DefaultStoreURL
	}
	if opts.SteamDBURL == "" {
		opts.SteamDBURL = DefaultSteamDBURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	hc := httpclient.DefaultConfig()
	hc.Timeout = opts.Timeout
	hc.RateLimiter.DefaultRPS = opts.RPS
	// SteamDB answers scrapers with 403 once it notices them.
	hc.Breaker = &httpclient.BreakerConfig{}

	recent, _ := lru.New[string, string](recentSize)
	return &Resolver{
		http:       httpclient.New(hc),
		cache:      cache,
		recent:     recent,
		storeURL:   opts.StoreURL,
		steamDBURL: strings.TrimRight(opts.SteamDBURL, "/") + "/",
		logger:     logger,
	}
}

// Cache returns the backing cache so the caller can save it.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve returns the game name for appID. Apps that every source answered
// as unknown are remembered for the lifetime of the Resolver. Failures caused
// by the network or an open breaker are not, so a later run asks again.
func (r *Resolver) Resolve(ctx context.Context, appID string) (string, error) {
	if name, ok := r.cache.Get(appID); ok {
		return name, nil
	}
	if name, ok := r.recent.Get(appID); ok {
		if name == "" {
			return "", ErrNotFound
		}
		return name, nil
	}

	name, definite, err := r.lookup(ctx, appID)
	if err != nil {
		if definite {
			r.recent.Add(appID, "")
		}
		return "", err
	}
	r.recent.Add(appID, name)
	r.cache.Put(appID, name)
	return name, nil
}

// lookup asks each source in turn. definite reports whether every source
// gave an answer that the app is unknown, as opposed to failing to answer.
func (r *Resolver) lookup(ctx context.Context, appID string) (name string, definite bool, err error) {
	log := r.logger.WithField("app_id", appID)

	name, err = r.fromStore(ctx, appID)
	if err == nil {
		return name, false, nil
	}
	log.WithError(err).Debug("store lookup failed")
	definite = isMiss(err)

	name, err = r.fromSteamDB(ctx, appID)
	if err == nil {
		return name, false, nil
	}
	log.WithError(err).Debug("steamdb lookup failed")
	definite = definite && isMiss(err)
	return "", definite, fmt.Errorf("%w: app %s", ErrNotFound, appID)
}

// isMiss reports whether err is an answer that the app does not exist.
func isMiss(err error) bool {
	return errors.Is(err, ErrNotFound) || httpclient.StatusCode(err) == http.StatusNotFound
}

type storeEntry struct {
	Success bool `json:"success"`
	Data    *struct {
		Name string `json:"name"`
	} `json:"data"`
}

func (r *Resolver) fromStore(ctx context.Context, appID string) (string, error) {
	q := url.Values{"appids": {appID}, "cc": {"us"}, "l": {"en"}}
	resp, err := r.http.Get(ctx, r.storeURL+"?"+q.Encode(), map[string]string{"Accept": "application/json"})
	if err != nil {
		return "", err
	}

	// Unknown apps come back as {"<id>": {"success": false}}; some IDs
	// yield a bare "null".
	var payload map[string]storeEntry
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("decode appdetails: %w", err)
	}
	entry, ok := payload[appID]
	if !ok || !entry.Success || entry.Data == nil {
		return "", ErrNotFound
	}
	name := strings.TrimSpace(entry.Data.Name)
	if name == "" {
		return "", ErrNotFound
	}
	return name, nil
}

func (r *Resolver) fromSteamDB(ctx context.Context, appID string) (string, error) {
	page := r.steamDBURL + url.PathEscape(appID) + "/"
	var lastErr error = ErrNotFound
	for _, u := range []string{page, page + "info/"} {
		resp, err := r.http.Get(ctx, u, browserHeaders)
		if err != nil {
			return "", err
		}
		name, err := nameFromHTML(resp.Body)
		if err == nil {
			return name, nil
		}
		lastErr = err
	}
	return "", lastErr
}
