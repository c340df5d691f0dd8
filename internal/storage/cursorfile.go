package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CursorFile persists the relay cursor as a small JSON document outside
// the relational store. Writes go through a temp file and rename so a
// crash mid-write never leaves a corrupt snapshot.
type CursorFile struct {
	path string
	mu   sync.Mutex
}

type cursorDoc struct {
	LastStatusID string `json:"last_status_id"`
}

// NewCursorFile creates a cursor store at the given path, creating the
// parent directory if needed.
func NewCursorFile(path string) (*CursorFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cursor directory: %w", err)
	}
	return &CursorFile{path: path}, nil
}

// Load reads the persisted cursor. A missing file means no cursor has
// been saved yet and is not an error.
func (c *CursorFile) Load(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cursor file: %w", err)
	}

	var doc cursorDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse cursor file: %w", err)
	}
	return doc.LastStatusID, nil
}

// Save atomically persists the cursor.
func (c *CursorFile) Save(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(cursorDoc{LastStatusID: id}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace cursor file: %w", err)
	}
	return nil
}
