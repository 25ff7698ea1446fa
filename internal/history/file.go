// Package history provides the persistence backends for the conversation log.
//
// Two implementations of [transcript.Store] are available:
//
//   - [File] — a JSON file on local disk, the default. Mirrors the log on
//     every mutation and survives restarts with no external services.
//   - [Postgres] — a single-row JSONB record in PostgreSQL, for setups that
//     already run a database and want the history off the local machine.
//
// Both treat unreadable state as an empty conversation: history must never
// prevent a session from starting.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roundone/Psych/internal/transcript"
)

// Compile-time assertion that File implements transcript.Store.
var _ transcript.Store = (*File)(nil)

// File persists the conversation as a JSON array on local disk.
// Writes go through a temp file and rename so a crash mid-write cannot leave
// a truncated history behind.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file-backed store at path. The parent directory is
// created if it does not exist.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("history: path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create directory %s: %w", dir, err)
		}
	}
	return &File{path: path}, nil
}

// Load implements [transcript.Store]. A missing file yields an empty
// conversation. A file that exists but does not parse is discarded with a
// warning; the next Save overwrites it.
func (f *File) Load(_ context.Context) ([]transcript.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read %s: %w", f.path, err)
	}

	var messages []transcript.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		slog.Warn("history: discarding corrupt history file",
			"path", f.path,
			"error", err,
		)
		return nil, nil
	}
	return messages, nil
}

// Save implements [transcript.Store].
func (f *File) Save(_ context.Context, messages []transcript.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode messages: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("history: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("history: rename %s: %w", tmp, err)
	}
	return nil
}

// Clear implements [transcript.Store]. Removing a file that does not exist
// is not an error.
func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("history: remove %s: %w", f.path, err)
	}
	return nil
}
