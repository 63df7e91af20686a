package vfs

import (
	"log/slog"
	"sync"
	"time"
)

// Janitor periodically sweeps every context's tool cache for expired
// entries. Grounded on the teacher's ticker-driven prune loop; the
// formula it applies is ToolCache.Expired's.
type Janitor struct {
	cache    *ToolCache
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel chan struct{}
	done   chan struct{}
}

// NewJanitor builds a Janitor that sweeps cache every interval.
func NewJanitor(cache *ToolCache, interval time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{cache: cache, interval: interval, logger: logger}
}

// Start launches the background sweep loop. Calling Start twice without
// an intervening Stop is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}
	j.cancel = make(chan struct{})
	j.done = make(chan struct{})

	go func(cancel, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				j.sweepAll()
			}
		}
	}(j.cancel, j.done)
}

// Stop halts the sweep loop and waits for the in-flight sweep, if any, to
// finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	close(cancel)
	<-done
}

// sweepAll lists every tool-cache entry across all contexts and deletes
// the ones that have aged out, logging diagnostics rather than failing
// since a single bad context must not stop the sweep of the rest.
func (j *Janitor) sweepAll() {
	entries, err := j.cache.router.List(toolCacheMountPrefix)
	if err != nil {
		j.logger.Warn("tool cache sweep: list failed", "error", err)
		return
	}

	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !j.cache.Expired(e, now) {
			continue
		}
		if err := j.cache.router.Delete(e.Path); err != nil {
			j.logger.Warn("tool cache sweep: delete failed", "path", e.Path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Debug("tool cache sweep complete", "removed", removed)
	}
}
