// Package vfs implements the core's virtual filesystem: a small routing
// layer in front of one or more storage backends, addressed by POSIX-style
// paths. The only backend this package ships is a local-disk one rooted at
// /sys/tool_cache, matching spec §4.2/§6's on-disk layout, but the routing
// table (spec §9) is built to admit additional mount points — a remote or
// object-store backend registers under its own prefix without touching
// callers. Grounded on the teacher's internal/artifacts local store: the
// atomic temp-file-then-rename write and JSON index idioms are kept, the
// dated-directory/MIME-extension addressing is not.
package vfs

import (
	"sort"
	"strings"
	"time"

	"github.com/chibi-ai/chibi/internal/chibierr"
)

// Entry is a single stored object's metadata, returned by Metadata and
// List.
type Entry struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Backend is a storage implementation mounted at some prefix in a Router.
type Backend interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Delete(path string) error
	List(prefix string) ([]Entry, error)
	Metadata(path string) (Entry, error)
}

// Router dispatches VFS operations to the backend registered under the
// longest matching path prefix, the same strategy an HTTP mux uses for
// longest-prefix route matching.
type Router struct {
	mounts []mount
}

type mount struct {
	prefix  string
	backend Backend
}

// NewRouter returns an empty router. Mount backends onto it with Mount.
func NewRouter() *Router {
	return &Router{}
}

// Mount registers backend to serve every path with the given prefix. A
// later, longer-matching Mount takes priority over a shorter one
// regardless of registration order.
func (r *Router) Mount(prefix string, backend Backend) {
	r.mounts = append(r.mounts, mount{prefix: prefix, backend: backend})
	sort.SliceStable(r.mounts, func(i, j int) bool {
		return len(r.mounts[i].prefix) > len(r.mounts[j].prefix)
	})
}

func (r *Router) resolve(path string) (Backend, error) {
	for _, m := range r.mounts {
		if strings.HasPrefix(path, m.prefix) {
			return m.backend, nil
		}
	}
	return nil, chibierr.New(chibierr.NotFound, "no mount for path: "+path)
}

func (r *Router) Read(path string) ([]byte, error) {
	b, err := r.resolve(path)
	if err != nil {
		return nil, err
	}
	return b.Read(path)
}

func (r *Router) Write(path string, data []byte) error {
	b, err := r.resolve(path)
	if err != nil {
		return err
	}
	return b.Write(path, data)
}

func (r *Router) Delete(path string) error {
	b, err := r.resolve(path)
	if err != nil {
		return err
	}
	return b.Delete(path)
}

func (r *Router) List(prefix string) ([]Entry, error) {
	b, err := r.resolve(prefix)
	if err != nil {
		return nil, err
	}
	return b.List(prefix)
}

func (r *Router) Metadata(path string) (Entry, error) {
	b, err := r.resolve(path)
	if err != nil {
		return Entry{}, err
	}
	return b.Metadata(path)
}
