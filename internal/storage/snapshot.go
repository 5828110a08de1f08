// Package storage persists in-process state to a JSON snapshot on disk.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SnapshotFile is a JSON document on disk that is always replaced whole,
// so readers never observe a half-written file.
type SnapshotFile struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotFile creates dataDir if needed and returns a handle to
// dataDir/filename. The file itself is created on the first Save.
func NewSnapshotFile(dataDir, filename string) (*SnapshotFile, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	return &SnapshotFile{path: filepath.Join(dataDir, filename)}, nil
}

func (f *SnapshotFile) Path() string { return f.path }

// Load decodes the snapshot into v. It reports false, with v untouched,
// when no snapshot has been written yet.
func (f *SnapshotFile) Load(v interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return false, fmt.Errorf("storage: decode %s: %w", f.path, err)
	}
	return true, nil
}

// Save writes v to a temp file in the same directory, syncs it and renames
// it over the snapshot.
func (f *SnapshotFile) Save(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		cleanup()
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, f.path)
}
