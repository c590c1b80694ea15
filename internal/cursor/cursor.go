// Package cursor tracks what has already been synchronized: a capture-time
// watermark plus an append-only log of processed items.
package cursor

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Cursor is the in-memory view of one persisted tracking document.
//
// A Cursor is owned by a single sync run; it is not safe for concurrent use.
type Cursor struct {
	state State
	store Store
}

// New returns a zero cursor (watermark 0, empty log) backed by store.
func New(store Store) *Cursor {
	return &Cursor{store: store}
}

// Load reads the cursor from store. A missing or corrupt document yields the
// zero cursor; corruption and read failures are logged, not returned.
func Load(ctx context.Context, store Store, logger logrus.FieldLogger) *Cursor {
	c := New(store)

	state, err := store.Load(ctx)
	switch {
	case err == nil:
		c.state = *state
	case errors.Is(err, ErrNotFound):
		logger.Debug("no tracking state yet, starting from the beginning")
	default:
		logger.WithError(err).Warn("tracking state unreadable, starting from the beginning")
	}
	return c
}

// Watermark returns the capture time of the newest processed item.
func (c *Cursor) Watermark() int64 {
	return c.state.Watermark
}

// ProcessedLog returns a copy of the processed log.
func (c *Cursor) ProcessedLog() []Entry {
	out := make([]Entry, len(c.state.ProcessedLog))
	copy(out, c.state.ProcessedLog)
	return out
}

// IsNew reports whether an item captured at captureTime has not been
// processed yet. An item exactly at the watermark counts as processed.
func (c *Cursor) IsNew(captureTime int64) bool {
	return captureTime > c.state.Watermark
}

// Record appends an entry to the processed log. It does not move the
// watermark.
func (c *Cursor) Record(entry Entry) {
	c.state.ProcessedLog = append(c.state.ProcessedLog, entry)
}

// Advance moves the watermark forward to ts. It never moves it back.
func (c *Cursor) Advance(ts int64) {
	if ts > c.state.Watermark {
		c.state.Watermark = ts
	}
}

// Save persists the cursor.
func (c *Cursor) Save(ctx context.Context) error {
	c.state.UpdatedAt = time.Now()
	if c.state.ProcessedLog == nil {
		c.state.ProcessedLog = []Entry{}
	}
	return c.store.Save(ctx, &c.state)
}
