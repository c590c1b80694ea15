package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
)

// JSONStore keeps a cursor in a single JSON document:
//
//	{"watermark": 1700000000, "processed_log": [{"identity": ..., "capture_time": ..., "processed_at": ...}]}
//
// Documents written by earlier releases (last_upload_time / uploaded_items)
// are accepted on load.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store for the document at path. Nothing is read or
// created until Load or Save is called.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the document location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads and decodes the document.
func (s *JSONStore) Load(ctx context.Context) (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &StoreError{Op: "read", Path: s.path, Err: ErrNotFound}
		}
		return nil, &StoreError{Op: "read", Path: s.path, Err: err}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &StoreError{Op: "read", Path: s.path, Err: ErrStorageCorrupt}
	}
	return doc.state(), nil
}

// Save writes the document atomically.
func (s *JSONStore) Save(ctx context.Context, state *State) error {
	err := WriteFile(s.path, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(state)
	})
	if err != nil {
		return &StoreError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}
