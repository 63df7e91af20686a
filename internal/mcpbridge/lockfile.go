// Package mcpbridge implements the core's MCP client bridge (spec §4.7): a
// companion daemon discovered via lockfile, spawned if absent, reached over
// a single length-delimited JSON TCP connection. Grounded on the teacher's
// internal/gateway/singleton_lock.go (lockfile liveness check adapted from
// a mutual-exclusion lock into a discover-or-spawn liveness probe) and
// internal/mcp/bridge.go (server naming, result flattening).
package mcpbridge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chibi-ai/chibi/internal/chibierr"
)

const (
	lockFileName        = "mcpbridge.lock"
	defaultStaleTimeout = 30 * time.Second
)

// LockPayload is the lockfile's JSON contents: enough to find the running
// daemon (address) and decide whether it is still alive (pid).
type LockPayload struct {
	PID       int       `json:"pid"`
	Address   string    `json:"address"`
	StartedAt time.Time `json:"started_at"`
}

// lockPath returns the lockfile's path under stateDir.
func lockPath(stateDir string) string {
	if stateDir == "" {
		stateDir = os.TempDir()
	}
	return filepath.Join(stateDir, lockFileName)
}

// ReadLock reads and validates the lockfile at stateDir, returning
// (payload, true) only if the recorded PID is still alive. A missing,
// corrupt, or stale (dead-PID) lockfile reports (zero, false) so the
// caller knows to spawn a fresh daemon.
func ReadLock(stateDir string) (LockPayload, bool) {
	path := lockPath(stateDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return LockPayload{}, false
	}
	var payload LockPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		if fileStale(path, defaultStaleTimeout) {
			_ = RemoveStaleLock(stateDir)
		}
		return LockPayload{}, false
	}
	if payload.PID <= 0 || payload.Address == "" || !processAlive(payload.PID) {
		_ = RemoveStaleLock(stateDir)
		return LockPayload{}, false
	}
	return payload, true
}

// WriteLock persists the daemon's liveness record. Called by the daemon
// process itself once its listener is bound.
func WriteLock(stateDir string, address string) (LockPayload, error) {
	payload := LockPayload{
		PID:       os.Getpid(),
		Address:   address,
		StartedAt: time.Now().UTC(),
	}
	path := lockPath(stateDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return LockPayload{}, chibierr.Wrap(chibierr.InternalError, "create lock directory", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return LockPayload{}, chibierr.Wrap(chibierr.InternalError, "encode lock payload", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return LockPayload{}, chibierr.Wrap(chibierr.InternalError, "write lock file", err)
	}
	return payload, nil
}

// RemoveStaleLock deletes a lockfile known to reference a dead process.
func RemoveStaleLock(stateDir string) error {
	err := os.Remove(lockPath(stateDir))
	if err != nil && !os.IsNotExist(err) {
		return chibierr.Wrap(chibierr.InternalError, "remove stale lock", err)
	}
	return nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// fileStale reports whether a lockfile written before a liveness check
// could complete is old enough to be presumed abandoned.
func fileStale(path string, staleTimeout time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > staleTimeout
}
