package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gamesync/internal/lock"
	"gamesync/internal/resolver"
	"gamesync/internal/tools"
)

const ps5Shot = "Astro Bot_20241105213040.jpg"

// isolate keeps the test away from the developer's config, .env and state.
func isolate(t *testing.T) string {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{
		"IMMICH_SERVER_URL", "IMMICH_API_KEY", "PS5_SOURCE_PATH", "PS5_OUTPUT_PATH",
		"SWITCH2_SOURCE_PATH", "SWITCH2_OUTPUT_PATH", "GMS_CURSOR_BACKEND", "GMS_LOG_FILE",
		"GMS_LOG_LEVEL", "EXIFTOOL_PATH",
	} {
		t.Setenv(k, "")
	}
	state := t.TempDir()
	t.Setenv("GMS_STATE_DIR", state)
	return state
}

func ps5Source(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ps5Shot), []byte("jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func run(t *testing.T, runner tools.Runner, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr, runner)
	return code, stdout.String(), stderr.String()
}

// ===== Configuration errors =====

func TestNothingToDo(t *testing.T) {
	isolate(t)
	code, _, stderr := run(t, &tools.FakeRunner{}, "ps5", "--source", ps5Source(t), "--no-upload")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Nothing to do: --no-upload without --output") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestMissingCredentials(t *testing.T) {
	isolate(t)
	runner := &tools.FakeRunner{}
	code, _, stderr := run(t, runner, "ps5", "--source", ps5Source(t))
	if code != 1 || !strings.Contains(stderr, "IMMICH_SERVER_URL") {
		t.Errorf("exit %d, stderr = %q", code, stderr)
	}
	if len(runner.Commands()) != 0 {
		t.Error("tools ran despite a configuration error")
	}
}

func TestMissingSource(t *testing.T) {
	isolate(t)
	tests := [][]string{
		{"ps5", "--no-upload", "--output", "out"},
		{"ps5", "--source", "/does/not/exist", "--no-upload", "--output", "out"},
		{"switch", "/does/not/exist", "--no-upload", "--output", "out"},
	}
	for _, args := range tests {
		if code, _, _ := run(t, &tools.FakeRunner{}, args...); code != 1 {
			t.Errorf("%v: exit code = %d, want 1", args, code)
		}
	}
}

func TestUnknownPlatform(t *testing.T) {
	isolate(t)
	code, _, stderr := run(t, &tools.FakeRunner{}, "status", "xbox")
	if code != 1 || !strings.Contains(stderr, "unknown platform") {
		t.Errorf("exit %d, stderr = %q", code, stderr)
	}
}

func TestLockHeld(t *testing.T) {
	state := isolate(t)
	prev := lockWait
	lockWait = 20 * time.Millisecond
	defer func() { lockWait = prev }()

	held := lock.New(filepath.Join(state, "ps5_tracker.json"))
	if err := held.Lock(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	defer held.Unlock()

	code, _, stderr := run(t, &tools.FakeRunner{}, "ps5", "--source", ps5Source(t), "--no-upload", "--output", t.TempDir())
	if code != 1 || !strings.Contains(stderr, "locked") {
		t.Errorf("exit %d, stderr = %q", code, stderr)
	}
}

// ===== Sync runs =====

func TestPS5TagOnly(t *testing.T) {
	state := isolate(t)
	source, out := ps5Source(t), t.TempDir()
	runner := &tools.FakeRunner{}

	code, stdout, stderr := run(t, runner, "ps5", "--source", source, "--no-upload", "--output", out)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "✓ "+ps5Shot) || !strings.Contains(stdout, "PS5: 1 ok, 0 duplicates, 0 failed / 1") {
		t.Errorf("stdout = %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(out, ps5Shot)); err != nil {
		t.Errorf("tagged copy missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(state, "ps5_tracker.json")); err != nil {
		t.Errorf("tracker not written: %v", err)
	}
	if cmds := runner.Commands(); len(cmds) != 1 || cmds[0].Name != "exiftool" {
		t.Errorf("commands = %v", cmds)
	}

	// Nothing new the second time.
	code, stdout, _ = run(t, runner, "ps5", "--source", source, "--no-upload", "--output", out)
	if code != 0 || !strings.Contains(stdout, "PS5: nothing new") {
		t.Errorf("second run: exit %d, stdout = %q", code, stdout)
	}

	code, stdout, _ = run(t, runner, "status", "ps5")
	if code != 0 {
		t.Fatalf("status exit code = %d", code)
	}
	wm := time.Date(2024, 11, 5, 21, 30, 40, 0, time.Local).Format(time.RFC3339)
	if !strings.Contains(stdout, wm) || !strings.Contains(stdout, "Processed:  1") {
		t.Errorf("status = %q", stdout)
	}
}

func TestPS5SQLiteBackend(t *testing.T) {
	state := isolate(t)
	t.Setenv("GMS_CURSOR_BACKEND", "sqlite")
	source, out := ps5Source(t), t.TempDir()

	if code, _, stderr := run(t, &tools.FakeRunner{}, "ps5", "--source", source, "--no-upload", "--output", out); code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(state, "gms.db")); err != nil {
		t.Errorf("sqlite database missing: %v", err)
	}
	code, stdout, _ := run(t, &tools.FakeRunner{}, "ps5", "--source", source, "--no-upload", "--output", out)
	if code != 0 || !strings.Contains(stdout, "nothing new") {
		t.Errorf("second run: exit %d, stdout = %q", code, stdout)
	}
}

func TestPS5Upload(t *testing.T) {
	isolate(t)
	var uploads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/assets" || r.Header.Get("x-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		uploads.Add(1)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"asset-1","status":"created"}`))
	}))
	defer server.Close()
	t.Setenv("IMMICH_SERVER_URL", server.URL)
	t.Setenv("IMMICH_API_KEY", "secret")

	tmp := t.TempDir()
	t.Setenv("GMS_TEMP_DIR", tmp)

	code, stdout, stderr := run(t, &tools.FakeRunner{}, "ps5", "--source", ps5Source(t))
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if uploads.Load() != 1 {
		t.Errorf("uploads = %d, want 1", uploads.Load())
	}
	if !strings.Contains(stdout, "PS5: 1 ok") {
		t.Errorf("stdout = %q", stdout)
	}
	if left, _ := os.ReadDir(tmp); len(left) != 0 {
		t.Errorf("temporary files left behind: %v", left)
	}
}

func TestItemFailureStillExitsZero(t *testing.T) {
	isolate(t)
	runner := &tools.FakeRunner{Fn: func(tools.Command) (*tools.Result, error) {
		return &tools.Result{ExitCode: 1}, &tools.CommandError{Tool: "exiftool", ExitCode: 1, Err: tools.ErrNonZeroExit}
	}}
	code, stdout, _ := run(t, runner, "ps5", "--source", ps5Source(t), "--no-upload", "--output", t.TempDir())
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout, "✗ "+ps5Shot) || !strings.Contains(stdout, "0 ok, 0 duplicates, 1 failed / 1") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestSwitchPositionalSource(t *testing.T) {
	isolate(t)
	source := t.TempDir()
	game := filepath.Join(source, "Mario Kart World – Nintendo Switch 2 Edition")
	if err := os.Mkdir(game, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(game, "2025060512000000_c.jpg"), []byte("jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()

	code, stdout, stderr := run(t, &tools.FakeRunner{}, "switch", source, "--no-upload", "--output", out)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "Switch 2: 1 ok") {
		t.Errorf("stdout = %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(out, "Mario Kart World", "2025060512000000_c.jpg")); err != nil {
		t.Errorf("tagged copy missing: %v", err)
	}
}

// ===== Other commands =====

func TestResolveFromCache(t *testing.T) {
	state := isolate(t)
	if err := os.WriteFile(filepath.Join(state, resolver.CacheFileName), []byte(`{"570":"Dota 2"}`), 0644); err != nil {
		t.Fatal(err)
	}
	code, stdout, stderr := run(t, &tools.FakeRunner{}, "resolve", "570")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if stdout != `{"app_id":"570","name":"Dota 2"}`+"\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestStatusEmpty(t *testing.T) {
	isolate(t)
	code, stdout, _ := run(t, &tools.FakeRunner{}, "status", "steam")
	if code != 0 || !strings.Contains(stdout, "Watermark:  none") || !strings.Contains(stdout, "Processed:  0") {
		t.Errorf("exit %d, stdout = %q", code, stdout)
	}
}

func TestSteamMalformedIndexExitsZero(t *testing.T) {
	isolate(t)
	steamDir := t.TempDir()
	index := filepath.Join(steamDir, "userdata", "42", "760", "screenshots.vdf")
	if err := os.MkdirAll(filepath.Dir(index), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(index, []byte(`}}}"unterminated`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GMS_STEAM_DIR", steamDir)
	t.Setenv("GMS_STEAM_ACCOUNT_ID", "42")
	t.Setenv("GMS_RESOLVE_NAMES", "false")

	code, stdout, stderr := run(t, &tools.FakeRunner{}, "steam", "--no-upload", "--output", t.TempDir())
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "Screenshots: nothing new") {
		t.Errorf("stdout = %q", stdout)
	}
}
