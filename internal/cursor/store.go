package cursor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for cursor persistence.
var (
	// ErrNotFound indicates no persisted cursor exists yet.
	ErrNotFound = errors.New("cursor: not found")
	// ErrStorageCorrupt indicates the persisted document could not be decoded.
	ErrStorageCorrupt = errors.New("cursor: data corruption detected")
)

// StoreError wraps persistence errors with the operation and location.
//
//	var storeErr *cursor.StoreError
//	if errors.As(err, &storeErr) {
//		fmt.Printf("cursor %s failed for %s: %v\n", storeErr.Op, storeErr.Path, storeErr.Err)
//	}
type StoreError struct {
	// Op is the operation that failed ("read", "write").
	Op string
	// Path is the file or table key of the cursor.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("cursor: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StoreError) Unwrap() error { return e.Err }

// Entry is one line of the processed log.
type Entry struct {
	Identity    string    `json:"identity"`
	CaptureTime int64     `json:"capture_time"`
	ProcessedAt time.Time `json:"processed_at"`
}

// State is the persisted form of a cursor.
type State struct {
	Watermark    int64     `json:"watermark"`
	ProcessedLog []Entry   `json:"processed_log"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Store persists cursor state. Implementations are not required to be safe
// for concurrent use; callers serialize runs against the same location.
type Store interface {
	// Load returns the persisted state. It returns an error wrapping
	// ErrNotFound when nothing has been persisted and ErrStorageCorrupt
	// when the document cannot be decoded.
	Load(ctx context.Context) (*State, error)
	// Save replaces the persisted state.
	Save(ctx context.Context, state *State) error
}
