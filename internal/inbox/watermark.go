package inbox

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Watermarks is a file-backed, per-role "newest request already seen"
// store. Timestamps only ever move forward; requests at or below the
// mark are treated as handled during reconciliation so restarts don't
// resurface old traffic.
type Watermarks struct {
	path string

	mu    sync.Mutex
	marks map[string]time.Time
}

// OpenWatermarks loads the store at path, creating it lazily on first
// bump. An empty path keeps the marks in memory only.
func OpenWatermarks(path string) (*Watermarks, error) {
	w := &Watermarks{path: path, marks: make(map[string]time.Time)}
	if path == "" {
		return w, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return w, nil
	}
	if err != nil {
		return nil, err
	}

	var stored map[string]string
	if err := json.Unmarshal(raw, &stored); err != nil {
		// A corrupt file means a fresh start, not a dead client.
		return w, nil
	}
	for roleID, stamp := range stored {
		if t, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
			w.marks[roleID] = t
		}
	}
	return w, nil
}

// DefaultWatermarkPath places the store under the user config dir.
func DefaultWatermarkPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nudgeeq", "watermarks.json"), nil
}

// Get returns the role's watermark, zero when none is set.
func (w *Watermarks) Get(roleID string) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.marks[roleID]
}

// Bump advances the role's watermark to t if t is newer and persists
// the store. It reports whether the mark moved.
func (w *Watermarks) Bump(roleID string, t time.Time) bool {
	if t.IsZero() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if current, ok := w.marks[roleID]; ok && !t.After(current) {
		return false
	}
	w.marks[roleID] = t
	w.saveLocked()
	return true
}

// saveLocked writes the whole map through a temp file and rename so a
// crash mid-write never truncates the store.
func (w *Watermarks) saveLocked() {
	if w.path == "" {
		return
	}

	stored := make(map[string]string, len(w.marks))
	for roleID, t := range w.marks {
		stored[roleID] = t.UTC().Format(time.RFC3339Nano)
	}
	raw, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, w.path)
}
