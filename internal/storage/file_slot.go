package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSlot persists the ride id in a small JSON file so it survives a
// process restart, the way the browser build kept it in local storage.
type FileSlot struct {
	mu   sync.Mutex
	path string
}

type slotFile struct {
	RideID    string    `json:"rideId"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

func (f *FileSlot) Load(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read slot: %w", err)
	}
	var sf slotFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return "", fmt.Errorf("decode slot %s: %w", f.path, err)
	}
	return sf.RideID, nil
}

func (f *FileSlot) Store(ctx context.Context, rideID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create slot dir: %w", err)
	}
	b, err := json.Marshal(slotFile{RideID: rideID, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	// write-then-rename so a crash never leaves a half written file
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write slot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace slot: %w", err)
	}
	return nil
}

func (f *FileSlot) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear slot: %w", err)
	}
	return nil
}
