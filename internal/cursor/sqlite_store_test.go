package cursor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStoreLoadMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Store("upload_tracker").Load(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreAppendsAcrossSaves(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := db.Store("clips_tracker")

	c := Load(ctx, store, quietLogger())
	c.Record(Entry{Identity: "clip_a", CaptureTime: 100, ProcessedAt: time.Unix(200, 0)})
	c.Advance(100)
	if err := c.Save(ctx); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}

	c = Load(ctx, store, quietLogger())
	c.Record(Entry{Identity: "clip_b", CaptureTime: 300, ProcessedAt: time.Unix(400, 0)})
	c.Advance(300)
	if err := c.Save(ctx); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	st, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Watermark != 300 {
		t.Errorf("Watermark = %d, want 300", st.Watermark)
	}
	if len(st.ProcessedLog) != 2 {
		t.Fatalf("ProcessedLog len = %d, want 2", len(st.ProcessedLog))
	}
	if st.ProcessedLog[0].Identity != "clip_a" || st.ProcessedLog[1].Identity != "clip_b" {
		t.Errorf("ProcessedLog order = %+v", st.ProcessedLog)
	}
	if !st.ProcessedLog[1].ProcessedAt.Equal(time.Unix(400, 0)) {
		t.Errorf("ProcessedAt = %v, want %v", st.ProcessedLog[1].ProcessedAt, time.Unix(400, 0))
	}
}

func TestSQLiteStoreNamesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := db.Store("ps5_tracker").Save(ctx, &State{Watermark: 7, UpdatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Store("switch_tracker").Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("other cursor Load() error = %v, want ErrNotFound", err)
	}
}
