package logstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taskplane/internal/task"

	"github.com/google/uuid"
)

// FileStore keeps each entry as a file under a root directory. Locations are
// mapped into the tree by dropping any URL scheme, so the same location
// string addresses the same file regardless of how the sysroot was spelled.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) path(loc task.LogLocation) string {
	p := string(loc)
	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+len("://"):]
	}
	return filepath.Join(s.root, filepath.FromSlash(p))
}

func (s *FileStore) Append(ctx context.Context, loc task.LogLocation, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := s.path(loc)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log entry: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(p); err != nil {
		return fmt.Errorf("appending to log entry: %w", err)
	}
	return nil
}

// Replace writes to a sibling temp file and renames it over the entry, so a
// concurrent Read sees the old content or the new one in full.
func (s *FileStore) Replace(ctx context.Context, loc task.LogLocation, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := s.path(loc)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	tmp := name + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, p, 0o644); err != nil {
		return fmt.Errorf("writing log entry: %w", err)
	}
	if err := os.Rename(tmp, name); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing log entry: %w", err)
	}
	return nil
}

func (s *FileStore) Read(ctx context.Context, loc task.LogLocation) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(s.path(loc))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading log entry: %w", err)
	}
	return content, nil
}
