package vfs

import (
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/chibi-ai/chibi/internal/chibierr"
)

// SystemCaller is the only identity permitted to write into the tool
// output cache namespace (spec §4.2). Any other caller identity may read
// but never write or delete there.
const SystemCaller = "system"

const toolCacheMountPrefix = "/sys/tool_cache/"

// ToolCache implements the core's tool-output cache: content too large to
// inline into the transcript is written once under
// /sys/tool_cache/<ctx>/<id>, with the transcript holding only a
// reference plus a short preview. Addressing and the GC formula are
// grounded on spec §4.2/§9; the underlying storage is a Router so a
// future remote backend can be mounted without changing this type.
type ToolCache struct {
	router     *Router
	maxAgeDays int
}

// NewToolCache wraps router, which must have a backend mounted at (or
// above) "/sys/tool_cache/". maxAgeDays is the context's configured
// tool_cache_max_age_days.
func NewToolCache(router *Router, maxAgeDays int) *ToolCache {
	return &ToolCache{router: router, maxAgeDays: maxAgeDays}
}

// CacheID deterministically names a cache entry for a tool invocation's
// output: "<tool>_<unixNanoTimestamp>_<hash>", where hash is the xxhash of
// the content. The same (tool, timestamp, content) always yields the same
// id; re-runs at different timestamps get distinct ids.
func CacheID(tool string, timestamp time.Time, content []byte) string {
	h := xxhash.Sum64(content)
	return fmt.Sprintf("%s_%d_%x", sanitizeToolName(tool), timestamp.UnixNano(), h)
}

func sanitizeToolName(tool string) string {
	return strings.ReplaceAll(tool, "/", "_")
}

func (c *ToolCache) path(ctxID, id string) string {
	return toolCacheMountPrefix + ctxID + "/" + id
}

// Path returns the vfs:// URI a cached entry is addressable at, for
// substituting into a tool_result's transcript content (spec §4.2).
func (c *ToolCache) Path(ctxID, id string) string {
	return "vfs://" + c.path(ctxID, id)
}

// Put stores content under the given context and cache id. caller must be
// SystemCaller; any other identity is denied (fail-safe-deny, matching the
// permission gate's default).
func (c *ToolCache) Put(caller, ctxID, id string, content []byte) error {
	if caller != SystemCaller {
		return chibierr.New(chibierr.PermissionDenied, "only the system caller may write to the tool cache")
	}
	return c.router.Write(c.path(ctxID, id), content)
}

// Get reads back a cached tool output. Any caller may read.
func (c *ToolCache) Get(ctxID, id string) ([]byte, error) {
	return c.router.Read(c.path(ctxID, id))
}

// Delete removes a single cache entry. caller must be SystemCaller.
func (c *ToolCache) Delete(caller, ctxID, id string) error {
	if caller != SystemCaller {
		return chibierr.New(chibierr.PermissionDenied, "only the system caller may delete from the tool cache")
	}
	return c.router.Delete(c.path(ctxID, id))
}

// List returns every cache entry for a context. Any caller may read.
func (c *ToolCache) List(ctxID string) ([]Entry, error) {
	return c.router.List(toolCacheMountPrefix + ctxID + "/")
}

// Expired reports whether an entry's age exceeds the GC threshold: spec
// §4.2's exact formula is now - created > (max_age_days + 1) days.
func (c *ToolCache) Expired(entry Entry, now time.Time) bool {
	threshold := time.Duration(c.maxAgeDays+1) * 24 * time.Hour
	return now.Sub(entry.CreatedAt) > threshold
}

// PruneContext deletes every expired entry for a single context and
// returns how many it removed. caller must be SystemCaller.
func (c *ToolCache) PruneContext(caller, ctxID string, now time.Time) (int, error) {
	if caller != SystemCaller {
		return 0, chibierr.New(chibierr.PermissionDenied, "only the system caller may prune the tool cache")
	}
	entries, err := c.List(ctxID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if c.Expired(e, now) {
			if err := c.router.Delete(e.Path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// ClearContext deletes every entry under a context's subtree, regardless
// of age. caller must be SystemCaller.
func (c *ToolCache) ClearContext(caller, ctxID string) error {
	if caller != SystemCaller {
		return chibierr.New(chibierr.PermissionDenied, "only the system caller may clear the tool cache")
	}
	entries, err := c.List(ctxID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := c.router.Delete(e.Path); err != nil {
			return err
		}
	}
	return nil
}

// CleanupAll sweeps every context's subtree for expired entries and
// returns the total removed. caller must be SystemCaller.
func (c *ToolCache) CleanupAll(caller string, now time.Time) (int, error) {
	if caller != SystemCaller {
		return 0, chibierr.New(chibierr.PermissionDenied, "only the system caller may run a full cleanup")
	}
	entries, err := c.router.List(toolCacheMountPrefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if c.Expired(e, now) {
			if err := c.router.Delete(e.Path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// parseContextFromPath splits a raw tool-cache path, as returned by
// List("/sys/tool_cache/"), into its <ctx> and <id> segments.
func parseContextFromPath(path string) (ctxID, id string, ok bool) {
	trimmed := strings.TrimPrefix(path, toolCacheMountPrefix)
	if trimmed == path {
		return "", "", false
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
