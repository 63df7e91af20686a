package vfs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chibi-ai/chibi/internal/chibierr"
	"github.com/google/uuid"
)

// LocalBackend stores objects as files on local disk under root, with a
// JSON sidecar index recording each entry's size and creation time. Writes
// are atomic: data is written to a temp file in root then renamed into
// place, the same pattern the teacher's local store used for artifacts.
type LocalBackend struct {
	root string

	mu    sync.Mutex
	index map[string]indexRecord
}

type indexRecord struct {
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLocalBackend creates (if absent) root and loads its index file, if
// one already exists from a prior process.
func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, chibierr.Wrap(chibierr.InternalError, "create vfs root", err)
	}
	b := &LocalBackend{root: root, index: map[string]indexRecord{}}
	if err := b.loadIndex(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *LocalBackend) indexPath() string {
	return filepath.Join(b.root, ".index.json")
}

func (b *LocalBackend) loadIndex() error {
	data, err := os.ReadFile(b.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return chibierr.Wrap(chibierr.InternalError, "read vfs index", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &b.index); err != nil {
		return chibierr.Wrap(chibierr.InvalidData, "decode vfs index", err)
	}
	return nil
}

// persistIndexLocked must be called with b.mu held.
func (b *LocalBackend) persistIndexLocked() error {
	data, err := json.Marshal(b.index)
	if err != nil {
		return chibierr.Wrap(chibierr.InternalError, "encode vfs index", err)
	}
	tmp := filepath.Join(b.root, ".index."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return chibierr.Wrap(chibierr.InternalError, "write vfs index temp file", err)
	}
	if err := os.Rename(tmp, b.indexPath()); err != nil {
		os.Remove(tmp)
		return chibierr.Wrap(chibierr.InternalError, "rename vfs index", err)
	}
	return nil
}

func (b *LocalBackend) objectPath(path string) string {
	return filepath.Join(b.root, pathToFilename(path))
}

func (b *LocalBackend) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(b.objectPath(path))
	if os.IsNotExist(err) {
		return nil, chibierr.New(chibierr.NotFound, path)
	}
	if err != nil {
		return nil, chibierr.Wrap(chibierr.InternalError, "read object", err)
	}
	return data, nil
}

func (b *LocalBackend) Write(path string, data []byte) error {
	target := b.objectPath(path)
	tmp := target + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return chibierr.Wrap(chibierr.InternalError, "write object temp file", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return chibierr.Wrap(chibierr.InternalError, "rename object", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.index[path] = indexRecord{Size: int64(len(data)), CreatedAt: time.Now()}
	return b.persistIndexLocked()
}

func (b *LocalBackend) Delete(path string) error {
	if err := os.Remove(b.objectPath(path)); err != nil && !os.IsNotExist(err) {
		return chibierr.Wrap(chibierr.InternalError, "delete object", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.index, path)
	return b.persistIndexLocked()
}

func (b *LocalBackend) List(prefix string) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var entries []Entry
	for p, rec := range b.index {
		if len(p) >= len(prefix) && p[:len(prefix)] == prefix {
			entries = append(entries, Entry{Path: p, Size: rec.Size, CreatedAt: rec.CreatedAt})
		}
	}
	return entries, nil
}

func (b *LocalBackend) Metadata(path string) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.index[path]
	if !ok {
		return Entry{}, chibierr.New(chibierr.NotFound, path)
	}
	return Entry{Path: path, Size: rec.Size, CreatedAt: rec.CreatedAt}, nil
}

// pathToFilename flattens a VFS path into a filesystem-safe filename by
// replacing separators, so entries never nest subdirectories on disk.
// Listing and pruning read the JSON index, not the directory.
func pathToFilename(path string) string {
	out := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			out = append(out, '_')
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
