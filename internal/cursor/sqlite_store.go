package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cursors (
	name       TEXT PRIMARY KEY,
	watermark  INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS processed_log (
	name         TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	identity     TEXT NOT NULL,
	capture_time INTEGER NOT NULL,
	processed_at TEXT NOT NULL,
	PRIMARY KEY (name, seq)
);
`

// SQLiteDB is a shared database holding any number of named cursors.
type SQLiteDB struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the cursor database at path.
// The caller must Close it.
func OpenSQLite(path string) (*SQLiteDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteDB{conn: conn, path: path}, nil
}

// Close closes the database.
func (db *SQLiteDB) Close() error {
	return db.conn.Close()
}

// Store returns the cursor stored under name.
func (db *SQLiteDB) Store(name string) *SQLiteStore {
	return &SQLiteStore{db: db, name: name}
}

// SQLiteStore is a Store backed by one row of the cursors table plus its
// processed_log rows.
type SQLiteStore struct {
	db   *SQLiteDB
	name string
}

func (s *SQLiteStore) key() string {
	return s.db.path + "#" + s.name
}

// Load reads the named cursor.
func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	var (
		st        State
		updatedAt string
	)
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT watermark, updated_at FROM cursors WHERE name = ?`, s.name,
	).Scan(&st.Watermark, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &StoreError{Op: "read", Path: s.key(), Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "read", Path: s.key(), Err: err}
	}
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT identity, capture_time, processed_at FROM processed_log WHERE name = ? ORDER BY seq`, s.name)
	if err != nil {
		return nil, &StoreError{Op: "read", Path: s.key(), Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e           Entry
			processedAt string
		)
		if err := rows.Scan(&e.Identity, &e.CaptureTime, &processedAt); err != nil {
			return nil, &StoreError{Op: "read", Path: s.key(), Err: ErrStorageCorrupt}
		}
		e.ProcessedAt, _ = time.Parse(time.RFC3339Nano, processedAt)
		st.ProcessedLog = append(st.ProcessedLog, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "read", Path: s.key(), Err: err}
	}
	return &st, nil
}

// Save upserts the watermark and appends log entries not yet stored. The
// processed log is append-only, so rows already present are left untouched.
func (s *SQLiteStore) Save(ctx context.Context, state *State) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "write", Path: s.key(), Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cursors (name, watermark, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET watermark = excluded.watermark, updated_at = excluded.updated_at`,
		s.name, state.Watermark, state.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return &StoreError{Op: "write", Path: s.key(), Err: err}
	}

	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_log WHERE name = ?`, s.name,
	).Scan(&stored); err != nil {
		return &StoreError{Op: "write", Path: s.key(), Err: err}
	}
	if stored > len(state.ProcessedLog) {
		// The in-memory log is shorter than what is stored; rewrite it.
		if _, err := tx.ExecContext(ctx, `DELETE FROM processed_log WHERE name = ?`, s.name); err != nil {
			return &StoreError{Op: "write", Path: s.key(), Err: err}
		}
		stored = 0
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO processed_log (name, seq, identity, capture_time, processed_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return &StoreError{Op: "write", Path: s.key(), Err: err}
	}
	defer stmt.Close()

	for seq := stored; seq < len(state.ProcessedLog); seq++ {
		e := state.ProcessedLog[seq]
		if _, err := stmt.ExecContext(ctx, s.name, seq, e.Identity, e.CaptureTime,
			e.ProcessedAt.Format(time.RFC3339Nano)); err != nil {
			return &StoreError{Op: "write", Path: s.key(), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "write", Path: s.key(), Err: err}
	}
	return nil
}
