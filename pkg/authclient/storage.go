package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Storage mirrors the session to durable media so a restarted process can
// resume without forcing a fresh login. Implementations must tolerate
// concurrent calls from the Monitor (it serializes them itself, but a
// shared file may still be touched by other processes).
type Storage interface {
	// Load returns the persisted session, or (nil, nil) when nothing has
	// been stored yet.
	Load() (*Session, error)
	// Save persists the session, replacing any previous one.
	Save(session Session) error
	// Clear removes the persisted session. Clearing an empty store is
	// not an error.
	Clear() error
}

// FileStorage keeps the session as a JSON file with owner-only
// permissions. Tokens are credentials; the file must not be group or
// world readable.
type FileStorage struct {
	path string
}

// NewFileStorage returns a FileStorage writing to path. Parent
// directories are created on first Save.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (f *FileStorage) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return &session, nil
}

func (f *FileStorage) Save(session Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	// Write-then-rename so readers never observe a torn file.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (f *FileStorage) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
