package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gamesync/internal/config"
	"gamesync/internal/engine"
	"gamesync/internal/media"
)

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.WithField("platform", "ps5").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(out, `"platform":"ps5"`) || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("json output = %q", out)
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gms.log")
	var console bytes.Buffer
	logger, closer, err := New(config.LogConfig{
		Level:      "debug",
		Format:     "text",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}, &console)
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("to both")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(console.String(), "to both") {
		t.Errorf("file = %q, console = %q", data, console.String())
	}
}

func TestNewBadLevel(t *testing.T) {
	if _, _, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("New() accepted an unknown level")
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "Screenshots")

	p.Item(engine.ItemResult{Record: media.Record{Identity: "20240101_1.jpg"}, Outcome: engine.OutcomeOK})
	p.Item(engine.ItemResult{Record: media.Record{Identity: "Game/a.png"}, Outcome: engine.OutcomeDuplicate})
	p.Item(engine.ItemResult{
		Record:  media.Record{Identity: "c.jpg"},
		Outcome: engine.OutcomeFailed,
		Err:     errors.New("upload: boom"),
	})
	p.Summary(engine.Summary{OK: 3, Duplicate: 1, Failed: 1, Total: 5})

	want := "✓ 20240101_1.jpg\n" +
		"✓ a.png (duplicate)\n" +
		"✗ c.jpg: upload: boom\n" +
		"Screenshots: 3 ok, 1 duplicates, 1 failed / 5\n"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}
