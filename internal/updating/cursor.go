package updating

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Cursor is the persisted "last key to process" checkpoint. It is saved
// after every successfully completed key, so a crash re-does at most
// one key's work.
type Cursor struct {
	Key int `json:"key"`

	path string
}

// CursorPath returns the cursor file location inside a workdir.
func CursorPath(workdir string) string {
	return filepath.Join(workdir, cursorFile)
}

// LoadCursor reads the cursor file, defaulting to key 0 when the file
// does not exist yet.
func LoadCursor(path string) (*Cursor, error) {
	cursor := &Cursor{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cursor, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cursor %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cursor); err != nil {
		return nil, fmt.Errorf("parse cursor %s: %w", path, err)
	}
	return cursor, nil
}

// Save writes the cursor with temp-then-rename semantics so a crash can
// never truncate it.
func (c *Cursor) Save() error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	temp := c.path + "~"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return fmt.Errorf("write cursor temp %s: %w", temp, err)
	}
	if err := os.Rename(temp, c.path); err != nil {
		return fmt.Errorf("replace cursor %s: %w", c.path, err)
	}
	return nil
}
