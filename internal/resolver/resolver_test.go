package resolver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeSteam serves the store API under /api/appdetails and SteamDB pages
// under /app/.
type fakeSteam struct {
	store    map[string]string // appid → raw JSON body
	pages    map[string]string // path → HTML
	requests atomic.Int32
}

func (f *fakeSteam) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if r.URL.Path == "/api/appdetails" {
		if r.URL.Query().Get("cc") != "us" || r.URL.Query().Get("l") != "en" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, ok := f.store[r.URL.Query().Get("appids")]
		if !ok {
			body = "null"
		}
		w.Write([]byte(body))
		return
	}
	if page, ok := f.pages[r.URL.Path]; ok {
		w.Write([]byte(page))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func newTestResolver(t *testing.T, f *fakeSteam, cache *Cache) *Resolver {
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return New(cache, Options{
		StoreURL:   server.URL + "/api/appdetails",
		SteamDBURL: server.URL + "/app",
	}, quietLogger())
}

func TestResolveFromStore(t *testing.T) {
	f := &fakeSteam{store: map[string]string{
		"1145360": `{"1145360":{"success":true,"data":{"name":" Hades "}}}`,
	}}
	r := newTestResolver(t, f, nil)

	name, err := r.Resolve(context.Background(), "1145360")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if name != "Hades" {
		t.Errorf("Resolve() = %q, want Hades", name)
	}
	if cached, ok := r.Cache().Get("1145360"); !ok || cached != "Hades" {
		t.Errorf("cache = %q, %v", cached, ok)
	}

	// Second lookup is served from the cache.
	before := f.requests.Load()
	if _, err := r.Resolve(context.Background(), "1145360"); err != nil {
		t.Fatal(err)
	}
	if f.requests.Load() != before {
		t.Error("cached lookup hit the network")
	}
}

func TestResolveFallsBackToSteamDB(t *testing.T) {
	f := &fakeSteam{
		store: map[string]string{"570": `{"570":{"success":false}}`},
		pages: map[string]string{
			"/app/570/": `<html><head><title>Dota 2 · AppID: 570 · SteamDB</title></head></html>`,
		},
	}
	name, err := newTestResolver(t, f, nil).Resolve(context.Background(), "570")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if name != "Dota 2" {
		t.Errorf("Resolve() = %q, want Dota 2", name)
	}
}

func TestResolveUsesInfoPage(t *testing.T) {
	f := &fakeSteam{pages: map[string]string{
		"/app/10/":      `<html><body><p>nothing here</p></body></html>`,
		"/app/10/info/": `<html><body><h1> <span>Counter-Strike</span> </h1></body></html>`,
	}}
	name, err := newTestResolver(t, f, nil).Resolve(context.Background(), "10")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if name != "Counter-Strike" {
		t.Errorf("Resolve() = %q", name)
	}
}

func TestResolveNotFoundIsRemembered(t *testing.T) {
	f := &fakeSteam{}
	r := newTestResolver(t, f, nil)

	if _, err := r.Resolve(context.Background(), "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}
	before := f.requests.Load()
	if _, err := r.Resolve(context.Background(), "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if f.requests.Load() != before {
		t.Error("remembered miss hit the network again")
	}
	if r.Cache().Len() != 0 {
		t.Error("miss was persisted to the cache")
	}
}

func TestResolveRetriesAfterTransientFailure(t *testing.T) {
	store := httptest.NewServer(&fakeSteam{})
	defer store.Close()

	var calls atomic.Int32
	steamDB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`<title>Tunic · SteamDB</title>`))
	}))
	defer steamDB.Close()

	r := New(nil, Options{
		StoreURL:   store.URL + "/api/appdetails",
		SteamDBURL: steamDB.URL + "/app",
	}, quietLogger())

	if _, err := r.Resolve(context.Background(), "553420"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("first Resolve() error = %v", err)
	}
	name, err := r.Resolve(context.Background(), "553420")
	if err != nil {
		t.Fatalf("second Resolve() error = %v, want the failure not to be remembered", err)
	}
	if name != "Tunic" {
		t.Errorf("Resolve() = %q, want Tunic", name)
	}
}

func TestResolveStopsAskingBlockingSteamDB(t *testing.T) {
	store := httptest.NewServer(&fakeSteam{})
	defer store.Close()

	var blocked atomic.Int32
	steamDB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		blocked.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer steamDB.Close()

	r := New(nil, Options{
		StoreURL:   store.URL + "/api/appdetails",
		SteamDBURL: steamDB.URL + "/app",
	}, quietLogger())

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		if _, err := r.Resolve(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Resolve(%s) error = %v", id, err)
		}
	}
	if n := blocked.Load(); n != 3 {
		t.Errorf("steamdb requests = %d, want 3 before the circuit opens", n)
	}
}

func TestNameFromHTML(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "title",
			page: `<title>Elden Ring - SteamDB</title>`,
			want: "Elden Ring",
		},
		{
			name: "og title",
			page: `<head><meta property="og:title" content="Hades II · SteamDB"></head>`,
			want: "Hades II",
		},
		{
			name: "twitter title",
			page: `<head><meta name="twitter:title" content="Celeste on SteamDB"></head>`,
			want: "Celeste",
		},
		{
			name: "ld json",
			page: `<script type="application/ld+json">{"@type":"SoftwareApplication","name":"Hollow Knight"}</script>`,
			want: "Hollow Knight",
		},
		{
			name: "h1 with markup",
			page: `<h1><a href="/x">Portal&nbsp;2</a></h1>`,
			want: "Portal 2",
		},
		{
			name: "entity in title",
			page: `<title>Baldur&#39;s Gate 3 · AppID: 1086940</title>`,
			want: "Baldur's Gate 3",
		},
		{
			name: "empty title falls through",
			page: `<title> </title><h1>Stardew Valley</h1>`,
			want: "Stardew Valley",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nameFromHTML([]byte(tt.page))
			if err != nil {
				t.Fatalf("nameFromHTML() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("nameFromHTML() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := nameFromHTML([]byte(`<p>no names</p>`)); !errors.Is(err, ErrNotFound) {
		t.Errorf("nameFromHTML(no names) error = %v", err)
	}
}

func TestCacheLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), CacheFileName)
	if err := os.WriteFile(path, []byte(`{"1145360":"Hades","42":7,"43":"  "}`), 0644); err != nil {
		t.Fatal(err)
	}

	c := LoadCache(path, quietLogger())
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (non-strings and blanks dropped)", c.Len())
	}
	if name, _ := c.Get("1145360"); name != "Hades" {
		t.Errorf("Get() = %q", name)
	}

	c.Put("570", "Dota 2")
	if err := c.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded := LoadCache(path, quietLogger())
	if name, _ := reloaded.Get("570"); name != "Dota 2" || reloaded.Len() != 2 {
		t.Errorf("reloaded cache: 570=%q len=%d", name, reloaded.Len())
	}
}

func TestCacheSaveOnlyWhenDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), CacheFileName)
	c := LoadCache(path, quietLogger())
	if err := c.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("clean cache was written")
	}
}

func TestLoadCacheCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), CacheFileName)
	if err := os.WriteFile(path, []byte(`[1,2`), 0644); err != nil {
		t.Fatal(err)
	}
	if c := LoadCache(path, quietLogger()); c.Len() != 0 {
		t.Errorf("Len() = %d for corrupt file", c.Len())
	}
}
